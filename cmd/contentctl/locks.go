package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var locksCmd = &cobra.Command{
	Use:   "locks",
	Short: "List or force-release write locks",
}

var locksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List held locks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		locks, done, err := cfg.BuildLockCoordinator(cmd.Context())
		if err != nil {
			return err
		}
		cleanup = done

		keys, err := locks.ListActive(cmd.Context())
		if err != nil {
			return fmt.Errorf("list locks: %w", err)
		}
		if len(keys) == 0 {
			fmt.Println("no locks held")
			return nil
		}
		for _, key := range keys {
			fmt.Println(key)
		}
		return nil
	},
}

var locksReleaseCmd = &cobra.Command{
	Use:   "release <key>...",
	Short: "Force-release locks regardless of their holder",
	Long: `Release drops the named locks whoever holds them. Use it only for locks
whose writer is known to be gone, for example:

  contentctl locks release object:42 template:7`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		locks, done, err := cfg.BuildLockCoordinator(cmd.Context())
		if err != nil {
			return err
		}
		cleanup = done

		for _, key := range args {
			if err := locks.ForceRelease(cmd.Context(), key); err != nil {
				return fmt.Errorf("release %s: %w", key, err)
			}
			fmt.Printf("released %s\n", key)
		}
		return nil
	},
}

func init() {
	locksCmd.AddCommand(locksListCmd)
	locksCmd.AddCommand(locksReleaseCmd)
}
