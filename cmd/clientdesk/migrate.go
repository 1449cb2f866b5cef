package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foxzi/clientdesk/internal/app"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database buckets or tables",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Opening a store applies its migrations
	st, _, err := app.OpenStore(cfg.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "Migrations completed successfully (%s: %s)\n", cfg.Database.Driver, cfg.Database.Path)
	return nil
}
