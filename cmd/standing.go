package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aurum-app/facerank/internal/config"
)

var standingCmd = &cobra.Command{
	Use:   "standing <user-id>",
	Short: "Show a user's current standing",
	Args:  cobra.ExactArgs(1),
	RunE:  runStanding,
}

func init() {
	rootCmd.AddCommand(standingCmd)
}

func runStanding(cmd *cobra.Command, args []string) error {
	userID := args[0]

	cfg := config.Load()
	ctx := context.Background()

	svc, _, cleanup, err := buildService(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	standing, err := svc.Standing(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to fetch standing: %w", err)
	}
	if standing == nil {
		fmt.Printf("No record for user %s\n", userID)
		return nil
	}

	fmt.Printf("User:        %s\n", standing.UserID)
	fmt.Printf("Score:       %.0f / 100\n", standing.Score)
	fmt.Printf("Percentile:  %.1f%%\n", standing.Percentile*100)
	fmt.Printf("Rank:        %d of %d\n", standing.Rank, standing.TotalPopulation)
	fmt.Printf("Vibes:       %s\n", strings.Join(standing.VibeTags, ", "))
	fmt.Printf("Submitted:   %s\n", standing.SubmittedAt.Format("2006-01-02 15:04:05"))
	return nil
}
