package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/1ureka/pcmlink/internal/observe"
	"github.com/1ureka/pcmlink/internal/relay"
	"github.com/1ureka/pcmlink/internal/signaling"
	"github.com/1ureka/pcmlink/internal/util"
	"github.com/1ureka/pcmlink/internal/webrtc"
)

var (
	flagHTTPAddr string
	flagTCPAddr  string
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the PC relay",
	Long: `Run the PC relay.

The relay listens for the endpoint's two TCP connections (HELLO-UP and
HELLO-DOWN) and serves the browser client over HTTP. Open the HTTP address in
a browser to listen to the endpoint's microphone and talk to its speaker.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagHTTPAddr != "" {
			cfg.Relay.HTTPAddr = flagHTTPAddr
		}
		if flagTCPAddr != "" {
			cfg.Relay.TCPAddr = flagTCPAddr
		}
		return runRelay(cmd.Context())
	},
}

func init() {
	relayCmd.Flags().StringVar(&flagHTTPAddr, "http", "", "HTTP listen address (browser, /ws, /rtc, /metrics)")
	relayCmd.Flags().StringVar(&flagTCPAddr, "tcp", "", "TCP listen address for the endpoint")
}

func runRelay(ctx context.Context) error {
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	defer shutdown(context.Background())

	ln, err := relay.Listen(cfg.Relay.TCPAddr, cfg.Relay.HandshakeTimeout)
	if err != nil {
		return err
	}

	bridge := relay.New(relay.Options{})
	srv := signaling.NewServer(bridge, signaling.Options{
		SampleRate: cfg.Audio.SampleRate,
		WebRTC:     webrtc.Config{ICEServers: cfg.Relay.ICEServers},
	})

	util.StartStatsReporter(ctx)
	util.LogSuccess("relay ready — endpoint on %s, browser on http://%s", cfg.Relay.TCPAddr, displayAddr(cfg.Relay.HTTPAddr))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bridge.Serve(gctx, ln) })
	g.Go(func() error { return srv.ListenAndServe(gctx, cfg.Relay.HTTPAddr) })

	if err := g.Wait(); err != nil {
		return err
	}
	util.LogInfo("relay stopped")
	return nil
}
