package main

import (
	"conductor/app/db"
	"conductor/pkg/log"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := initDB(); err != nil {
			return err
		}
		if err := db.Migrate(db.GetDBConnection()); err != nil {
			return err
		}
		log.Info(nil, "database schema is up to date")
		return nil
	},
}
