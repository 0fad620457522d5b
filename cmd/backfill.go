package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/aurum-app/facerank/internal/config"
	"github.com/aurum-app/facerank/internal/scoring"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill <directory>",
	Short: "Score a directory of images",
	Long: `Score every image in a directory to seed or re-score a population.
The user ID is derived from the file name without its extension
(e.g. alice.jpg scores user "alice"). Already-scored users inside their
eligibility window are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runBackfill,
}

func init() {
	rootCmd.AddCommand(backfillCmd)
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
}

func runBackfill(cmd *cobra.Command, args []string) error {
	dir := args[0]

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		fmt.Println("No images found")
		return nil
	}

	cfg := config.Load()
	ctx := context.Background()

	svc, _, cleanup, err := buildService(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	bar := progressbar.Default(int64(len(files)), "Scoring")
	var scored, skipped, failed int

	for _, name := range files {
		userID := strings.TrimSuffix(name, filepath.Ext(name))

		imageData, err := os.ReadFile(filepath.Join(dir, name)) //nolint:gosec // CLI argument
		if err != nil {
			fmt.Printf("\nWarning: failed to read %s: %v\n", name, err)
			failed++
			bar.Add(1)
			continue
		}

		_, err = svc.Score(ctx, scoring.ScoreRequest{UserID: userID, Image: imageData})
		switch {
		case err == nil:
			scored++
		case isDuplicate(err):
			skipped++
		default:
			fmt.Printf("\nWarning: failed to score %s: %v\n", name, err)
			failed++
		}
		bar.Add(1)
	}

	fmt.Printf("\nDone: %d scored, %d skipped (existing valid score), %d failed\n", scored, skipped, failed)
	return nil
}

func isDuplicate(err error) bool {
	var se *scoring.Error
	return errors.As(err, &se) && se.Code == scoring.CodeDuplicateScore
}
