package main

import (
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/exportprofiles/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		var fsys fs.FS = migrations.FS
		if config.Database.MigrationsDir != "" {
			fsys = os.DirFS(config.Database.MigrationsDir)
		}
		if err := s.ApplyMigrations(fsys); err != nil {
			return err
		}
		logger.Info.Printf("Migrations applied")
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the profiles of a user in a course",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		profiles, err := s.GetProfiles(cmd.Context(), owner())
		if err != nil {
			return err
		}

		if len(profiles) == 0 {
			fmt.Println("No profiles stored.")
			return nil
		}

		for _, p := range profiles {
			marker := " "
			if p.Last {
				marker = "*"
			}
			fmt.Printf("%s %d\t%s\n", marker, p.ID, p.Name)
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <profile-id>",
	Short: "Show stored item states and options of a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid profile id %q", args[0])
		}

		_, s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := cmd.Context()
		name, access, err := s.GetProfileName(ctx, owner(), id)
		if err != nil {
			return err
		}
		if !access.Granted() {
			return fmt.Errorf("profile %d: %s", id, access)
		}

		states, _, err := s.GetItemStates(ctx, owner(), id)
		if err != nil {
			return err
		}
		options, _, err := s.GetOptions(ctx, owner(), id)
		if err != nil {
			return err
		}

		fmt.Printf("Profile %d: %s\n", id, name)
		fmt.Println("Items:")
		itemIDs := make([]int64, 0, len(states))
		for item := range states {
			itemIDs = append(itemIDs, item)
		}
		sort.Slice(itemIDs, func(i, j int) bool { return itemIDs[i] < itemIDs[j] })
		for _, item := range itemIDs {
			fmt.Printf("  %d = %d\n", item, states[item])
		}

		fmt.Println("Options:")
		keys := make([]string, 0, len(options))
		for k := range options {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", k, options[k])
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <profile-id>",
	Short: "Delete a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid profile id %q", args[0])
		}

		_, s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		access, err := s.DeleteProfile(cmd.Context(), owner(), id)
		if err != nil {
			return err
		}
		if !access.Granted() {
			return fmt.Errorf("profile %d not deleted: %s", id, access)
		}
		logger.Info.Printf("Deleted profile %d", id)
		return nil
	},
}

var purgeCourseCmd = &cobra.Command{
	Use:   "purge-course <course-id>",
	Short: "Delete every profile of a removed course",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		course, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid course id %q", args[0])
		}

		_, s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		deleted, err := s.DeleteAllForCourse(cmd.Context(), course)
		if err != nil {
			return err
		}
		logger.Info.Printf("Purged %d profiles of course %d", deleted, course)
		return nil
	},
}
