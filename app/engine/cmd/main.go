package main

import (
	"fmt"
	"os"

	"conductor/app/config"
	"conductor/app/db"
	"conductor/pkg/log"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "conductor",
	Short: "conductor - workflow engine",
	Long:  `conductor drives workflow instances through their task graphs and serves the workflow API.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(configPath); err != nil {
			return fmt.Errorf("load config %s: %w", configPath, err)
		}
		log.Initialize(config.Config.LOG.Format, config.Config.LOG.TimestampFormat)
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file, defaults to $CONDUCTOR_CONFIG or /etc/conductor/config.ini")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(runCmd)
}

func initDB() error {
	dbCfg := config.Config.Database
	return db.Init(&db.Config{
		Connection:  dbCfg.Connection,
		Debug:       dbCfg.Debug,
		PoolSize:    dbCfg.PoolSize,
		IdleTimeout: dbCfg.IdleTimeout,
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
