package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/caleb/fittrack/internal/output"
	"github.com/caleb/fittrack/internal/store"
)

var initCmd = &cobra.Command{
	Use:     "init",
	Short:   "Initialize the local fittrack database",
	Long:    `Creates the data directory and SQLite database.`,
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := getDataDir()

		// Check if already initialized
		if _, err := os.Stat(filepath.Join(dir, "fittrack.db")); err == nil {
			output.Warning("database already exists at %s", dir)
			return nil
		}

		db, err := store.Initialize(dir)
		if err != nil {
			output.Error("failed to initialize database: %v", err)
			return err
		}
		defer db.Close()

		fmt.Printf("INITIALIZED %s\n", dir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
