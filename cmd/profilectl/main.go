package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shrimpsizemoose/exportprofiles/internal/app"
	"github.com/shrimpsizemoose/exportprofiles/internal/models"
	"github.com/shrimpsizemoose/exportprofiles/internal/store"
)

var (
	configPath string
	userID     int64
	courseID   int64
)

var rootCmd = &cobra.Command{
	Use:          "profilectl",
	Short:        "Inspect and maintain grade export profiles",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.toml", "Path to config file")

	for _, cmd := range []*cobra.Command{listCmd, showCmd, deleteCmd, tokenCmd} {
		cmd.Flags().Int64Var(&userID, "user", 0, "User id")
	}
	for _, cmd := range []*cobra.Command{listCmd, showCmd, deleteCmd} {
		cmd.Flags().Int64Var(&courseID, "course", 0, "Course id")
		cmd.MarkFlagRequired("user")
		cmd.MarkFlagRequired("course")
	}
	tokenCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(purgeCourseCmd)
	rootCmd.AddCommand(tokenCmd)
}

func openStore() (*app.Config, store.Store, error) {
	config, err := app.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	s, err := app.NewStore(config.Database.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init store: %w", err)
	}
	return config, s, nil
}

func owner() models.Owner {
	return models.Owner{UserID: userID, CourseID: courseID}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
