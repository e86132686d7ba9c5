package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/plexsim/internal/visualization"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph [run-id]",
		Short: "Visualize a stored reaction network",
		Long: `Output a run's reaction network in DOT (Graphviz), JSON, or HTML format.

Species are drawn as ellipses and reactions as boxes. Use --min to hide
species below a population and the reactions that touch them.

Examples:
  plexsim graph | dot -Tsvg > network.svg
  plexsim graph --format json --min 1
  plexsim graph --format html -o network.html
  plexsim graph --serve`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")
			noOpen, _ := cmd.Flags().GetBool("no-open")
			serve, _ := cmd.Flags().GetBool("serve")
			minPop, _ := cmd.Flags().GetInt64("min")
			runID := runArg(args)

			db, err := openDatabase(cmd)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			ctx := commandContext(cmd)
			if serve {
				return runGraphServer(cmd, ctx, visualization.NewServer(db, runID), noOpen)
			}

			snap, err := db.Snapshot(ctx, runID)
			if err != nil {
				return err
			}
			opts := visualization.Options{MinPopulation: minPop}

			switch visualization.Format(format) {
			case visualization.FormatDOT:
				fmt.Fprint(cmd.OutOrStdout(), visualization.RenderDOT(snap, opts))

			case visualization.FormatJSON:
				if err := writeJSON(cmd.OutOrStdout(), visualization.RenderJSON(snap, opts)); err != nil {
					return fmt.Errorf("encode JSON: %w", err)
				}

			case visualization.FormatHTML:
				htmlBytes, err := visualization.RenderHTML(snap, "plexsim network", opts)
				if err != nil {
					return fmt.Errorf("render HTML: %w", err)
				}
				return writeStaticHTML(cmd, htmlBytes, output, noOpen)

			default:
				return fmt.Errorf("unsupported format %q (use 'dot', 'json', or 'html')", format)
			}
			return nil
		},
	}

	cmd.Flags().String("format", "dot", "Output format: dot, json, or html")
	cmd.Flags().StringP("output", "o", "", "Output file path (html format only)")
	cmd.Flags().Int64("min", 0, "Hide species below this population")
	cmd.Flags().Bool("no-open", false, "Don't open browser after generating HTML")
	cmd.Flags().Bool("serve", false, "Start a local server serving the network as HTML, DOT and JSON")

	return cmd
}

// writeStaticHTML writes a rendered page and optionally opens it.
func writeStaticHTML(cmd *cobra.Command, htmlBytes []byte, output string, noOpen bool) error {
	outPath := output
	if outPath == "" {
		outPath = filepath.Join(os.TempDir(), "plexsim-graph.html")
	}

	if err := os.WriteFile(outPath, htmlBytes, 0644); err != nil {
		return fmt.Errorf("write HTML file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Graph written to %s\n", outPath)

	if !noOpen {
		if err := visualization.OpenBrowser(outPath); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\nOpen %s manually.\n", err, outPath)
		}
	}
	return nil
}

// runGraphServer starts the graph server and blocks until Ctrl-C or the
// context ends.
func runGraphServer(cmd *cobra.Command, ctx context.Context, srv *visualization.Server, noOpen bool) error {
	srvCtx, srvCancel := context.WithCancel(ctx)
	defer srvCancel()

	sigCh := make(chan os.Signal, 1)
	notifySignals(sigCh)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			srvCancel()
		case <-srvCtx.Done():
		}
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(srvCtx) }()

	// Wait for server to start
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if srv.Addr() != "" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	addr := srv.Addr()
	if addr == "" {
		return fmt.Errorf("server failed to start")
	}

	url := "http://" + addr
	fmt.Fprintf(cmd.OutOrStdout(), "Graph server running at %s\n", url)
	fmt.Fprintf(cmd.OutOrStdout(), "Press Ctrl-C to stop.\n")

	if !noOpen {
		if err := visualization.OpenBrowser(url); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\nOpen %s manually.\n", err, url)
		}
	}

	if err := <-errCh; err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
