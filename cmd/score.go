package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aurum-app/facerank/internal/config"
	"github.com/aurum-app/facerank/internal/scoring"
)

var scoreCmd = &cobra.Command{
	Use:   "score <user-id> <image-file>",
	Short: "Score a face submission",
	Long: `Score a single face submission for a user.
The image is run through the full pipeline: eligibility check, feature
extraction, quality validation, and population ranking.`,
	Args: cobra.ExactArgs(2),
	RunE: runScore,
}

func init() {
	rootCmd.AddCommand(scoreCmd)

	scoreCmd.Flags().Bool("nft-verified", false, "Mark the submission as NFT verified")
	scoreCmd.Flags().Bool("identity-verified", false, "Mark the submission as identity verified")
}

func runScore(cmd *cobra.Command, args []string) error {
	userID := args[0]
	imagePath := args[1]

	imageData, err := os.ReadFile(imagePath) //nolint:gosec // CLI argument
	if err != nil {
		return fmt.Errorf("failed to read image %s: %w", imagePath, err)
	}

	cfg := config.Load()
	ctx := context.Background()

	svc, _, cleanup, err := buildService(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := svc.Score(ctx, scoring.ScoreRequest{
		UserID:           userID,
		Image:            imageData,
		NFTVerified:      mustGetBool(cmd, "nft-verified"),
		IdentityVerified: mustGetBool(cmd, "identity-verified"),
	})
	if err != nil {
		return fmt.Errorf("scoring failed: %w", err)
	}

	printScoreResult(result)
	return nil
}

func printScoreResult(result *scoring.ScoreResult) {
	fmt.Printf("User:        %s\n", result.UserID)
	fmt.Printf("Score:       %.0f / 100\n", result.Score)
	fmt.Printf("Percentile:  %.1f%%\n", result.Percentile*100)
	fmt.Printf("Rank:        %d of %d\n", result.Rank, result.TotalPopulation)
	fmt.Printf("Confidence:  %.2f\n", result.Confidence)
	fmt.Printf("Vibes:       %s\n", strings.Join(result.VibeTags, ", "))
	if result.Degraded {
		fmt.Printf("Note:        extraction backend unavailable, simulated result\n")
	}
	fmt.Printf("Took:        %dms\n", result.ProcessingTimeMS)
}
