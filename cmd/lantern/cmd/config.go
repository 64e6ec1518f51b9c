package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lanternsearch/lantern/internal/config"
	"github.com/lanternsearch/lantern/internal/output"
)

// newConfigCmd creates the config command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the lantern configuration file",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigValidateCmd())

	return cmd
}

// newConfigInitCmd writes a starter config file.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file with the defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(os.Stdout)
			path := config.GetUserConfigPath()
			if configPath != "" {
				path = configPath
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
			}

			if config.UserConfigExists() && force {
				backup, err := config.BackupUserConfig()
				if err == nil && backup != "" {
					out.Statusf("•", "Existing config backed up to %s", backup)
				}
			}

			cfg := config.NewConfig()
			if err := cfg.WriteYAML(path); err != nil {
				return err
			}

			out.Successf("Wrote %s", path)
			out.Status("•", "Edit 'roots' to choose which directories get indexed, then run 'lantern backfill'")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config (backs it up first)")

	return cmd
}

// newConfigShowCmd prints the effective configuration.
func newConfigShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Show prints the configuration after merging the defaults, the
config file, and environment overrides.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// newConfigValidateCmd checks the configuration for errors.
func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration for errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(os.Stdout)

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("config invalid: %w", err)
			}
			if _, err := cfg.BuildPolicy(); err != nil {
				return fmt.Errorf("config invalid: %w", err)
			}

			out.Success("Config is valid")
			out.Statusf("•", "Data dir: %s", cfg.DataDir)
			out.Statusf("•", "Roots: %d configured", len(cfg.Roots))
			return nil
		},
	}
}
