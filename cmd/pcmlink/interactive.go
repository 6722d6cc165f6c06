package main

import (
	"net"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/pcmlink/internal/util"
)

// runInteractive asks for the role when no subcommand is given.
func runInteractive(cmd *cobra.Command, args []string) error {
	role, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Relay    — Bridge the endpoint to a browser", "Endpoint — Stream a test tone to a relay"}).
		WithDefaultText("Select your role").
		Show()

	pterm.Println()

	if strings.HasPrefix(role, "Relay") {
		return runRelay(cmd.Context())
	}
	cfg.Endpoint.Server = askServer(cfg.Endpoint.Server)
	return runEndpoint(cmd.Context())
}

// askServer prompts for the relay address until a valid host:port is entered.
func askServer(current string) string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Relay address (host:port)").
			WithDefaultValue(current).
			Show()

		addr := strings.TrimSpace(raw)
		if host, port, err := net.SplitHostPort(addr); err == nil && host != "" && port != "" {
			pterm.Println()
			return addr
		}

		util.LogWarning("invalid address: expected host:port, e.g. 192.168.1.2:9002")
		pterm.Println()
	}
}

// displayAddr turns a listen address into something a browser can open.
func displayAddr(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}
