package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"

	"ait-main/src/internal/binding"
	"ait-main/src/internal/config"
	"ait-main/src/internal/gateway"
	"ait-main/src/internal/logging"
	"ait-main/src/internal/memory"
)

var version = "0.1.0-dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ait",
		Short: "Associative memory for a conversational agent",
		Long: `ait remembers every question and answer as an experience, links it to
the experiences it recalled, and retrieves related experiences by walking
that link graph from the most recent one.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.ait/config.yaml)")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(),
		newChatCmd(),
		newAskCmd(),
		newRememberCmd(),
		newRelatedCmd(),
		newShowCmd(),
		newRecentCmd(),
		newRateCmd(),
		newRemoveCmd(),
		newGraphCmd(),
		newStatsCmd(),
		newExportCmd(),
		newConfigCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"version": version})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ait version %s\n", version)
			return nil
		},
	}
}

// loadConfig reads the config and installs the default logger. Logs go to
// logw, or to ait.log in the storage dir when logw is nil.
func loadConfig(cmd *cobra.Command, logw io.Writer) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if logw == nil {
		f, err := os.OpenFile(filepath.Join(cfg.StorageDir, "ait.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, goerr.Wrap(err, "open log file")
		}
		cobra.OnFinalize(func() { f.Close() })
		logw = f
	}
	if _, err := logging.Setup(logw, cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openGateway(cmd *cobra.Command) (*gateway.Gateway, error) {
	cfg, err := loadConfig(cmd, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	return gateway.New(cmd.Context(), cfg)
}

func closeGateway(gw *gateway.Gateway) {
	if err := gw.Close(context.Background()); err != nil {
		slog.Error("failed to close gateway", "error", err)
	}
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(s string) (memory.TextID, error) {
	id, err := binding.TextIDHex(s)
	if err != nil {
		return id, goerr.Wrap(err, "invalid experience id", goerr.V("id", s))
	}
	return id, nil
}

var errNotFound = errors.New("experience not found")
