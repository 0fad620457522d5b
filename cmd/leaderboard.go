package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aurum-app/facerank/internal/config"
)

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Show the population leaderboard",
	RunE:  runLeaderboard,
}

func init() {
	rootCmd.AddCommand(leaderboardCmd)

	leaderboardCmd.Flags().Int("limit", 10, "Number of entries to show")
}

func runLeaderboard(cmd *cobra.Command, args []string) error {
	limit := mustGetInt(cmd, "limit")

	cfg := config.Load()
	ctx := context.Background()

	svc, _, cleanup, err := buildService(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	entries, err := svc.Leaderboard(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to fetch leaderboard: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("The population is empty")
		return nil
	}

	fmt.Printf("%-5s %-30s %-7s %-6s %s\n", "RANK", "USER", "SCORE", "PCTL", "VIBES")
	for _, e := range entries {
		fmt.Printf("%-5d %-30s %-7.0f %-6.2f %s\n",
			e.Rank, e.UserID, e.Score, e.Percentile, strings.Join(e.VibeTags, ", "))
	}
	return nil
}
