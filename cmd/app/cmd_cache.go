package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the generation result cache",
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove cache entries older than the configured TTL",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context(), configFile)
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		n, err := a.generation.EvictExpired(cmd.Context())
		if err != nil {
			return fmt.Errorf("prune cache: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired entries (ttl %s)\n", n, a.cfg.Cache.TTL)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cachePruneCmd)
}
