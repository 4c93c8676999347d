package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			shapes, _ := cfg.Shapes()
			fmt.Printf("Configuration OK: %d symbols, polling every %s\n", len(cfg.Watchlist), cfg.PollingInterval)
			for _, s := range shapes {
				state := "disabled"
				if s.Enabled {
					state = "enabled"
				}
				fmt.Printf("  %-15s %-8s model=%s width=%.4f body=%.3f wing=%.3f min_credit=%.2f dte=%d\n",
					s.Kind, state, s.Model, s.WidthPercent, s.BodyRatio, s.WingRatio, s.MinCredit, s.ExpirationDays)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with defaults and environment applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			redacted := *cfg
			if redacted.Safeguards.OverrideSecret != "" {
				redacted.Safeguards.OverrideSecret = "********"
			}
			if redacted.Execution.Password != "" {
				redacted.Execution.Password = "********"
			}
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(redacted)
		},
	})
	return cmd
}
