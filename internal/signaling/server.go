package signaling

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/pcmlink/internal/observe"
	"github.com/1ureka/pcmlink/internal/peer"
	"github.com/1ureka/pcmlink/internal/protocol"
	"github.com/1ureka/pcmlink/internal/relay"
	"github.com/1ureka/pcmlink/internal/util"
	"github.com/1ureka/pcmlink/internal/webrtc"
)

//go:embed static/index.html
var indexHTML []byte

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	defaultNegotiateTimeout = 30 * time.Second
	shutdownTimeout         = 5 * time.Second
)

// Options configures the HTTP surface.
type Options struct {
	// SampleRate is advertised to the browser client via /healthz.
	SampleRate int

	// WebRTC selects ICE servers for /rtc peers.
	WebRTC webrtc.Config

	// NegotiateTimeout bounds the /rtc offer/answer exchange. Default 30s.
	NegotiateTimeout time.Duration
}

// Server routes browser peers into a relay.Bridge.
type Server struct {
	bridge *relay.Bridge
	opts   Options
	mux    *http.ServeMux
}

// NewServer creates a server for bridge.
func NewServer(bridge *relay.Bridge, opts Options) *Server {
	if opts.NegotiateTimeout <= 0 {
		opts.NegotiateTimeout = defaultNegotiateTimeout
	}

	s := &Server{bridge: bridge, opts: opts, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /ws", s.handleWS)
	s.mux.HandleFunc("GET /rtc", s.handleRTC)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /sessions", s.handleSessions)
	s.mux.Handle("GET /metrics", observe.Handler())
	return s
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe serves on addr until ctx is cancelled. Peers still attached
// at shutdown are closed through ctx.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	util.LogInfo("http: listening on %s", ln.Addr())

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Peers
// ---------------------------------------------------------------------------

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	dirs, err := parseDirections(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return // Upgrade has already replied
	}

	p := peer.NewWebSocket(conn)
	util.LogInfo("websocket peer %s from %s (%s)", p.ID(), r.RemoteAddr, joinDirections(dirs))

	detach := s.attach(p, dirs)
	defer detach()

	if err := p.Serve(r.Context(), s.deliverFunc(p, dirs)); err != nil {
		util.LogWarning("websocket peer %s: %v", p.ID(), err)
	}
}

func (s *Server) handleRTC(w http.ResponseWriter, r *http.Request) {
	dirs, err := parseDirections(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx := r.Context()
	tr, err := webrtc.NewTransport(ctx, s.opts.WebRTC)
	if err != nil {
		util.LogError("failed to create Transport: %v", err)
		return
	}

	nctx, cancel := context.WithTimeout(ctx, s.opts.NegotiateTimeout)
	err = Negotiate(nctx, conn, tr)
	cancel()
	if err != nil {
		util.LogWarning("webrtc signaling from %s: %v", r.RemoteAddr, err)
		tr.Close()
		return
	}
	// All further traffic goes through the DataChannel.
	conn.Close()

	p := peer.NewDataChannel(tr)
	util.LogInfo("webrtc peer %s from %s (%s)", p.ID(), r.RemoteAddr, joinDirections(dirs))

	detach := s.attach(p, dirs)
	defer detach()

	if err := p.Serve(ctx, s.deliverFunc(p, dirs)); err != nil {
		util.LogWarning("webrtc peer %s: %v", p.ID(), err)
	}
}

// attach registers p for every direction in dirs and returns a func that
// detaches all of them.
func (s *Server) attach(p relay.Peer, dirs []protocol.Direction) func() {
	detaches := make([]func(), 0, len(dirs))
	for _, d := range dirs {
		detaches = append(detaches, s.bridge.AttachPeer(d, p))
	}
	return func() {
		for _, detach := range detaches {
			detach()
		}
	}
}

// deliverFunc returns the inbound handler for p, or nil for an uplink-only
// peer whose messages are ignored.
func (s *Server) deliverFunc(p relay.Peer, dirs []protocol.Direction) peer.DeliverFunc {
	if !slices.Contains(dirs, protocol.Down) {
		return nil
	}
	return func(payload []byte) {
		err := s.bridge.Deliver(p, payload)
		switch {
		case err == nil, errors.Is(err, relay.ErrNotAttached):
		default:
			util.LogDebug("peer %s: dropped message: %v", p.ID(), err)
		}
	}
}

// parseDirections reads ?dir=up|down|both. Missing means both.
func parseDirections(r *http.Request) ([]protocol.Direction, error) {
	q := r.URL.Query().Get("dir")
	if q == "" || q == "both" {
		return protocol.Directions[:], nil
	}
	d, err := protocol.ParseDirection(q)
	if err != nil {
		return nil, err
	}
	return []protocol.Direction{d}, nil
}

func joinDirections(dirs []protocol.Direction) string {
	if len(dirs) == len(protocol.Directions) {
		return "both"
	}
	return dirs[0].String()
}

// ---------------------------------------------------------------------------
// Status
// ---------------------------------------------------------------------------

type healthResponse struct {
	Status     string              `json:"status"`
	SampleRate int                 `json:"sample_rate"`
	Sessions   []relay.SessionInfo `json:"sessions"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, healthResponse{
		Status:     "ok",
		SampleRate: s.opts.SampleRate,
		Sessions:   s.bridge.Sessions(),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.bridge.Sessions())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		util.LogDebug("http: write response: %v", err)
	}
}
