package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/1ureka/pcmlink/internal/audio"
	"github.com/1ureka/pcmlink/internal/endpoint"
	"github.com/1ureka/pcmlink/internal/util"
)

var (
	flagServer       string
	flagToneHz       float64
	flagPlaybackFile string
)

var endpointCmd = &cobra.Command{
	Use:   "endpoint",
	Short: "Run a software endpoint against a relay",
	Long: `Run a software endpoint.

The endpoint opens the uplink and downlink connections to the relay and keeps
them up forever, reconnecting on failure. The uplink carries a sine tone;
downlink audio is counted and optionally written to a raw PCM16 file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagServer != "" {
			cfg.Endpoint.Server = flagServer
		}
		if cmd.Flags().Changed("tone") {
			cfg.Audio.ToneHz = flagToneHz
		}
		if flagPlaybackFile != "" {
			cfg.Audio.PlaybackFile = flagPlaybackFile
		}
		return runEndpoint(cmd.Context())
	},
}

func init() {
	endpointCmd.Flags().StringVar(&flagServer, "server", "", "relay host:port")
	endpointCmd.Flags().Float64Var(&flagToneHz, "tone", 0, "uplink tone frequency in Hz (0 = silence)")
	endpointCmd.Flags().StringVar(&flagPlaybackFile, "playback-file", "", "write received audio as raw PCM16 to this file")
}

func runEndpoint(ctx context.Context) error {
	var sink io.Writer
	if cfg.Audio.PlaybackFile != "" {
		f, err := os.Create(cfg.Audio.PlaybackFile)
		if err != nil {
			return fmt.Errorf("playback file: %w", err)
		}
		defer f.Close()
		sink = f
	}

	dev := audio.NewTone(cfg.Audio.SampleRate, cfg.Audio.Channels, cfg.Audio.ToneHz, sink)

	util.StartStatsReporter(ctx)

	err := endpoint.Run(ctx, dev, endpoint.Options{
		Addr: cfg.Endpoint.Server,
		Backoff: endpoint.Backoff{
			Retry:  cfg.Endpoint.RetryDelay,
			Redial: cfg.Endpoint.RedialDelay,
		},
		CaptureRetry: cfg.Endpoint.CaptureRetry,
	})
	if errors.Is(err, context.Canceled) {
		util.LogInfo("endpoint stopped (%d frames played)", dev.PlayedFrames())
		return nil
	}
	return err
}
