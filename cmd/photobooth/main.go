// Command photobooth runs the booth: buttons in, flash and camera out,
// pictures to disk, printer and gallery.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/photobooth/internal/config"
	"github.com/sweeney/photobooth/internal/logger"
	"github.com/sweeney/photobooth/internal/status"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger.Logger.Fatal().Err(err).Msg("fatal")
	}
}

type rootOptions struct {
	configFile string
	console    bool
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "photobooth",
		Short: "Photobooth capture daemon",
		Long: `photobooth drives a button panel, flash and camera, saves stills and
animated bursts with thumbnails, prints on request and serves a gallery.

Running without a subcommand is the same as "photobooth run".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file (default: photobooth.yaml in "+strings.Join(config.SearchPaths(), ", ")+")")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&opts.console, "console", false, "read buttons from the keyboard (p photo, g gif, x print, i info, q quit)")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the booth until SIGINT or SIGTERM",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd.Context(), opts)
		},
	})
	root.AddCommand(newConfigCmd(opts))
	root.AddCommand(newPrintStateCmd(opts))
	return root
}

func runCommand(ctx context.Context, opts *rootOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := config.Load(opts.configFile)
	if err != nil {
		return err
	}
	cfg := store.Current()
	level := cfg.Log.Level
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	logger.Init(level, cfg.Log.Pretty)
	return run(ctx, store, opts.console)
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := config.Load(opts.configFile)
			if err != nil {
				return err
			}
			return showConfig(cmd.OutOrStdout(), store)
		},
	})
	return cmd
}

func showConfig(w io.Writer, store *config.Store) error {
	fmt.Fprintf(w, "# %s\n", store.File())
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(store.Current()); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

func newPrintStateCmd(opts *rootOptions) *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "print-state",
		Short: "Print the state of the running daemon and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				store, err := config.Load(opts.configFile)
				if err != nil {
					return err
				}
				url = stateURL(store.Current().HTTP.Addr)
				if url == "" {
					return fmt.Errorf("http.addr is empty, no status endpoint to query")
				}
			}
			return printState(cmd.Context(), cmd.OutOrStdout(), url)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "status URL (default: derived from http.addr)")
	return cmd
}

// stateURL turns a listen address into a local status URL.
func stateURL(addr string) string {
	if addr == "" {
		return ""
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/index.json"
}

func printState(ctx context.Context, w io.Writer, url string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("query %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("query %s: %s", url, resp.Status)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}
	s := sj.Status
	last := "none"
	if s.LastArtifact != nil {
		last = s.LastArtifact.Name
	}
	fmt.Fprintf(w, "Mode: %s, View: %s, Flash: %s, Last: %s\n", s.Mode, s.View, onOff(s.FlashOn), last)
	fmt.Fprintf(w, "Photos: %d, Bursts: %d, Saved: %d, Prints: %d\n", s.Counts.Photos, s.Counts.Bursts, s.Counts.Saved, s.Counts.PrintSubmitted)
	return nil
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
