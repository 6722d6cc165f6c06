// Command pcmlink runs the PCM relay or a test endpoint.
//
// The tool carries 20 ms PCM16 frames between an audio endpoint and a
// browser. `pcmlink relay` runs the PC side: it accepts the endpoint's
// uplink and downlink TCP connections and bridges them to a browser over
// WebSocket or a WebRTC DataChannel. `pcmlink endpoint` runs the device side
// on a PC with a synthetic tone source, for testing without hardware.
//
// Launched without a subcommand it asks for the role interactively.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/pcmlink/internal/config"
	"github.com/1ureka/pcmlink/internal/util"
)

var version = "dev"

var (
	cfgFile   string
	envFile   string
	debugMode bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "pcmlink",
	Short: "Duplex PCM audio link between an embedded endpoint and a browser",
	Long: `pcmlink streams raw PCM16 audio in 20 ms frames.

  relay     accept the endpoint on TCP and bridge it to a browser
  endpoint  run a software endpoint (tone generator) against a relay

Configuration comes from defaults, an optional YAML file (--config), a .env
file, and the environment (HTTP_PORT, TCP_PORT, STREAM_SERVER_HOST, ...).`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	RunE:              runInteractive,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded into the environment if present")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(relayCmd)
	rootCmd.AddCommand(endpointCmd)
	rootCmd.Version = version
}

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}

	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return err
	}

	util.SetLevel(cfg.Log.Level)
	if debugMode {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("pcmlink — v%s", version))
	pterm.Println()
	return nil
}
