package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tesslate/studio-orchestrator/internal/config"
	"github.com/tesslate/studio-orchestrator/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the metadata store schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		st, err := store.New(store.Config{
			Host: cfg.Store.Host, Port: cfg.Store.Port, User: cfg.Store.User,
			Password: cfg.Store.Password, DBName: cfg.Store.DBName, SSLMode: cfg.Store.SSLMode,
		})
		if err != nil {
			return fmt.Errorf("connect to store: %w", err)
		}
		defer st.Close()

		if err := st.Migrate(); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		fmt.Println("✓ Migration complete")
		return nil
	},
}
