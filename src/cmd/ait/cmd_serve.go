package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ait-main/src/internal/api"
	"ait-main/src/internal/gateway"
	"ait-main/src/internal/tui"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket API",
		Long: `Serve the memory over HTTP on server.addr.

With --tui the chat UI runs in the same process and quitting it stops
the server. Logs then go to ait.log in the storage directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			withTUI, _ := cmd.Flags().GetBool("tui")
			addr, _ := cmd.Flags().GetString("addr")

			logw := cmd.ErrOrStderr()
			if withTUI {
				logw = nil
			}
			cfg, err := loadConfig(cmd, logw)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			release, err := acquirePIDFile(filepath.Join(cfg.StorageDir, "ait.pid"))
			if err != nil {
				return err
			}
			defer release()

			isLoopback := cfg.Server.EffectiveHost == "127.0.0.1" || cfg.Server.EffectiveHost == "localhost" || cfg.Server.EffectiveHost == "::1"
			if !isLoopback && cfg.Server.Key == "" {
				slog.Warn("binding to non-loopback address without server key; recommend setting server.key", "host", cfg.Server.EffectiveHost)
			}

			gw, err := gateway.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeGateway(gw)

			if err := gw.StartCron(); err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			g, ctx := errgroup.WithContext(ctx)

			server := api.NewServer(gw)
			g.Go(func() error {
				return server.ListenAndServe(ctx, cfg.Server.Addr)
			})
			if withTUI {
				g.Go(func() error {
					defer cancel()
					return tui.Run(ctx, gw)
				})
			}
			return g.Wait()
		},
	}
	cmd.Flags().Bool("tui", false, "Run the chat UI alongside the server")
	cmd.Flags().String("addr", "", "Override server.addr")
	return cmd
}

// acquirePIDFile refuses to start when another live process owns path and
// cleans up a stale file left by a crashed one.
func acquirePIDFile(path string) (func(), error) {
	if pidBytes, err := os.ReadFile(path); err == nil {
		pidStr := strings.TrimSpace(string(pidBytes))
		if pid, err := strconv.Atoi(pidStr); err == nil && pid > 0 {
			if syscall.Kill(pid, 0) == nil {
				return nil, fmt.Errorf("ait already running (pid %d, pidfile %s)", pid, path)
			}
			if err := os.Remove(path); err != nil {
				slog.Warn("failed to remove stale pidfile", "path", path, "error", err)
			} else {
				slog.Info("cleaned stale pidfile", "pid", pid)
			}
		}
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
		return nil, fmt.Errorf("failed to write pidfile %s: %w", path, err)
	}
	return func() {
		if err := os.Remove(path); err != nil {
			slog.Error("failed to remove pidfile", "path", path, "error", err)
		}
	}, nil
}

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Open the terminal chat UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, nil)
			if err != nil {
				return err
			}
			gw, err := gateway.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeGateway(gw)
			return tui.Run(cmd.Context(), gw)
		},
	}
}
