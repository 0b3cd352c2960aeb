package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-geo-elements/internal/server"
)

// Options defines all CLI flags and env vars for the map document server.
// Flags: --host, --port, --data-dir, --log-level, --no-db
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_LOG_LEVEL, SERVICE_NO_DB
type Options struct {
	Host     string `doc:"Host to bind to" default:"0.0.0.0"`
	Port     int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir  string `doc:"Directory holding documents/ and the journal database" default:".data"`
	LogLevel string `doc:"Log level (debug, info, warn, error)" default:"info"`
	NoDB     bool   `doc:"Disable the DuckDB mutation journal"`
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func newServer(opts *Options) *server.Server {
	return server.New(server.Config{
		Host:    opts.Host,
		Port:    fmt.Sprintf("%d", opts.Port),
		DataDir: opts.DataDir,
		NoDB:    opts.NoDB,
		Logger:  newLogger(opts.LogLevel),
	})
}

func marshal(v any, useYAML bool) ([]byte, error) {
	if useYAML {
		return yaml.Marshal(v)
	}
	return json.MarshalIndent(v, "", "  ")
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		srv := newServer(opts)
		httpSrv := &http.Server{
			Addr:    fmt.Sprintf("%s:%d", opts.Host, opts.Port),
			Handler: srv,
		}

		hooks.OnStart(func() {
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-geo-elements API server starting...\n")
			fmt.Printf("  Server:    %s\n", baseURL)
			fmt.Printf("  Documents: %s\n", srv.Documents().DocumentsDir())
			fmt.Println()
			fmt.Printf("  Docs:      %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI:   %s/openapi.json\n", baseURL)
			fmt.Printf("  Events:    %s/api/v1/events\n", baseURL)
			fmt.Println()

			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			httpSrv.Shutdown(ctx)
			srv.Close()
		})
	})

	cli.Root().Use = "mapdoc"
	cli.Root().Short = "Declarative MapLibre documents: serve, inspect and render"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			opts.NoDB = true
			srv := newServer(opts)
			defer srv.Close()

			useYAML, _ := cmd.Flags().GetBool("yaml")
			output, err := marshal(srv.OpenAPI(), useYAML)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// render subcommand: attach a markup file and print the resulting styles
	renderCmd := &cobra.Command{
		Use:   "render FILE",
		Short: "Attach every element of a markup file and print each map's style",
		Args:  cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			useYAML, _ := cmd.Flags().GetBool("yaml")
			timeout, _ := cmd.Flags().GetDuration("timeout")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			f, err := os.Open(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			defer f.Close()

			styles, renderErr := render(ctx, f, newLogger(opts.LogLevel))
			if styles != nil {
				output, err := marshal(styles, useYAML)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error marshaling styles: %v\n", err)
					os.Exit(1)
				}
				fmt.Println(string(output))
			}
			if renderErr != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", renderErr)
				os.Exit(1)
			}
		}),
	}
	renderCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	renderCmd.Flags().DurationP("timeout", "t", 10*time.Second, "How long to wait for elements to attach")
	cli.Root().AddCommand(renderCmd)

	cli.Run()
}
