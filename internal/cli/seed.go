package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/collabhq/collabd/internal/config"
)

// newSeedCmd creates the seed command
func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create demo users, project, and agents",
		Long: `Populate an empty database with demo data.

Creates three users (admin, designer, developer), a sample project
with one task, and three AI agents. Does nothing if users already
exist.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFrom(loadConfigPath())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			adb, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = adb.Close() }()

			if err := adb.Seed(); err != nil {
				return err
			}

			n, err := adb.CountUsers()
			if err != nil {
				return err
			}
			if !quiet {
				fmt.Printf("Database ready (%d users)\n", n)
			}
			return nil
		},
	}
}
