// ABOUTME: Cobra command tree: serve, health, tools and version
// ABOUTME: stdout is reserved for the protocol stream when serving over stdio

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/knowledge-bridge/internal/apiclient"
	"github.com/2389/knowledge-bridge/internal/bridge"
	"github.com/2389/knowledge-bridge/internal/config"
	"github.com/2389/knowledge-bridge/internal/identity"
	"github.com/2389/knowledge-bridge/internal/packs"
	"github.com/2389/knowledge-bridge/internal/providers"
)

// Exit codes
const (
	exitFailure       = 1
	exitConfiguration = 2
)

// ExitError is an error that carries a specific process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

const banner = `
  _                    _          _
 | | ___ __   _____  _| | ___  __| | __ _  ___
 | |/ / '_ \ / _ \ \/ \/ / _ \/ _' |/ _' |/ _ \
 |   <| | | | (_) \  /\ /  __/ (_| | (_| |  __/
 |_|\_\_| |_|\___/ \/  \/ \___|\__,_|\__, |\___|  bridge
                                     |___/
`

type cli struct {
	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer
	configPath string
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdin: stdin, stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "knowledge-bridge",
		Short: "MCP bridge to a knowledge-management API",
		Long:  "knowledge-bridge exposes notes, search, project, statistics and cross-reference tools over MCP and relays change webhooks.",
		// SilenceUsage prevents printing usage on every error
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          c.runServe,
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "Path to config file (default: $KB_CONFIG or ~/.config/knowledge-bridge/config.yaml)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve tools and resources over the configured transport",
		Args:  cobra.NoArgs,
		RunE:  c.runServe,
	})
	root.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Probe the knowledge API once",
		Args:  cobra.NoArgs,
		RunE:  c.runHealth,
	})
	root.AddCommand(&cobra.Command{
		Use:   "tools",
		Short: "List the tool catalog",
		Args:  cobra.NoArgs,
		RunE:  c.runTools,
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(c.stdout, "knowledge-bridge version %s\n", bridge.Version)
		},
	})

	return root
}

func (c *cli) loadConfig() (*config.Config, string, error) {
	path := c.configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, &ExitError{Code: exitConfiguration, Err: fmt.Errorf("loading config: %w", err)}
	}
	return cfg, path, nil
}

func (c *cli) runServe(cmd *cobra.Command, args []string) error {
	cfg, path, err := c.loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging, c.stderr)

	c.printBanner(cfg, path)

	b, err := bridge.New(cmd.Context(), cfg, logger, bridge.WithStdio(c.stdin, c.stdout))
	if err != nil {
		if errors.Is(err, identity.ErrConfiguration) {
			return &ExitError{Code: exitConfiguration, Err: err}
		}
		return fmt.Errorf("creating bridge: %w", err)
	}
	return b.Run(cmd.Context())
}

// printBanner writes startup info to stderr; stdout may be the protocol stream.
func (c *cli) printBanner(cfg *config.Config, path string) {
	if !cfg.Logging.Enabled {
		return
	}
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Fprint(c.stderr, banner)
	gray.Fprintf(c.stderr, "    version: %s\n\n", bridge.Version)

	line := func(label, value string) {
		green.Fprint(c.stderr, "    ▶ ")
		fmt.Fprintf(c.stderr, "%-10s %s\n", label, value)
	}
	line("Config:", path)
	line("API:", cfg.API.BaseURL)
	line("Transport:", cfg.MCP.Transport)
	if cfg.MCP.Transport == "http" {
		line("HTTP:", cfg.MCP.HTTPAddr)
	}
	if cfg.Webhook.Enabled {
		green.Fprint(c.stderr, "    ▶ ")
		fmt.Fprintf(c.stderr, "%-10s %s:%d%s", "Webhook:", cfg.Webhook.Host, cfg.Webhook.Port, cfg.Webhook.Path)
		if cfg.Webhook.Tailscale.Enabled {
			cyan.Fprintf(c.stderr, " tailnet:%s", cfg.Webhook.Tailscale.Hostname)
			if cfg.Webhook.Tailscale.Funnel {
				yellow.Fprint(c.stderr, " [funnel]")
			}
		}
		fmt.Fprintln(c.stderr)
	}
	fmt.Fprintln(c.stderr)
}

func (c *cli) runHealth(cmd *cobra.Command, args []string) error {
	cfg, _, err := c.loadConfig()
	if err != nil {
		return err
	}

	client := apiclient.New(apiclient.Config{
		BaseURL:    cfg.API.BaseURL,
		Credential: cfg.API.Credential,
		ClientID:   cfg.API.ClientID,
		Timeout:    cfg.API.Timeout,
		Logger:     slog.New(slog.DiscardHandler),
	})

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.API.Timeout+time.Second)
	defer cancel()

	report, err := client.Health(ctx)
	if err != nil {
		color.New(color.FgRed).Fprint(c.stdout, "unhealthy")
		fmt.Fprintf(c.stdout, " %s: %v\n", cfg.API.BaseURL, err)
		return &ExitError{Code: exitFailure, Err: errors.New("knowledge API is unreachable")}
	}

	color.New(color.FgGreen).Fprint(c.stdout, "healthy")
	fmt.Fprintf(c.stdout, " %s (status %d, %s)\n", cfg.API.BaseURL, report.Status, report.Latency.Round(time.Millisecond))
	return nil
}

func (c *cli) runTools(cmd *cobra.Command, args []string) error {
	registry := packs.NewRegistry(slog.New(slog.DiscardHandler))
	if err := registry.RegisterAll(providers.All(nil)...); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tTOOL\tREQUIRED\tDESCRIPTION")
	for _, p := range registry.Providers() {
		for _, def := range p.ListTools() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID(), def.Name, requiredArgs(def.InputSchema), def.Description)
		}
	}
	return tw.Flush()
}

func requiredArgs(schema json.RawMessage) string {
	var s struct {
		Required []string `json:"required"`
	}
	if json.Unmarshal(schema, &s) != nil || len(s.Required) == 0 {
		return "-"
	}
	out := s.Required[0]
	for _, r := range s.Required[1:] {
		out += "," + r
	}
	return out
}
