package endpoint

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/1ureka/pcmlink/internal/audio"
	"github.com/1ureka/pcmlink/internal/util"
)

// Run starts the uplink and downlink workers against the same device and
// blocks until ctx is cancelled. The two workers never synchronize; each
// owns one direction of dev.
func Run(ctx context.Context, dev audio.Device, opts Options) error {
	util.LogInfo("endpoint: %d Hz, %d ch, %d samples per frame, relay %s",
		dev.SampleRate(), dev.Channels(), audio.FrameSamples(dev.SampleRate(), dev.Channels()), opts.Addr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return NewUplink(dev, opts).Run(gctx) })
	g.Go(func() error { return NewDownlink(dev, opts).Run(gctx) })
	return g.Wait()
}
