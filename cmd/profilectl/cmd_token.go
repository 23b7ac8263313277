package main

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/shrimpsizemoose/exportprofiles/internal/app"
	"github.com/shrimpsizemoose/exportprofiles/internal/models"
)

var capabilities []string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue or update the API token of a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := app.LoadConfig(configPath)
		if err != nil {
			return err
		}

		opt, err := redis.ParseURL(config.Auth.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse redis URL: %w", err)
		}

		tm := app.NewTokenManager(redis.NewClient(opt), config.Auth.TokenKeyTemplate)
		defer tm.Close()

		info, created, err := tm.FetchOrCreateUserToken(cmd.Context(), userID, capabilities)
		if err != nil {
			return err
		}

		if created {
			fmt.Printf("Created token for user %d\n", info.UserID)
		} else {
			fmt.Printf("Updated token for user %d (used %d times)\n", info.UserID, info.RequestCount)
		}
		fmt.Printf("Token: %s\n", info.Token)
		fmt.Printf("Capabilities: %v\n", info.Capabilities)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringSliceVar(&capabilities, "cap", []string{models.CapGradeExport, models.CapProfilesView}, "Capabilities granted to the token")
}
