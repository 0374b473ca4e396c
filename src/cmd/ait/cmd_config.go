package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"ait-main/src/internal/config"
)

const masked = "********"

// redacted returns a copy of cfg that is safe to print.
func redacted(cfg *config.Config) config.Config {
	out := *cfg
	out.Models.Providers = make(map[string]config.ProviderConfig, len(cfg.Models.Providers))
	for name, p := range cfg.Models.Providers {
		if p.APIKey != "" {
			p.APIKey = masked
		}
		out.Models.Providers[name] = p
	}
	if out.Embeddings.APIKey != "" {
		out.Embeddings.APIKey = masked
	}
	if out.Server.Key != "" {
		out.Server.Key = masked
	}
	return out
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or initialise the configuration",
	}
	cmd.AddCommand(newConfigShowCmd(), newConfigInitCmd(), newConfigPathCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			safe := redacted(cfg)
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), safe)
			}
			data, err := yaml.Marshal(safe)
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")
			cfg, err := loadConfig(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if _, err := os.Stat(cfg.Path()); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", cfg.Path())
			}
			if err := config.Save(cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", cfg.Path())
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "Overwrite an existing file")
	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print where the config file lives",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cfg.Path())
			return nil
		},
	}
}
