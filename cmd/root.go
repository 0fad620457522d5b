// Package cmd holds the facerank CLI commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "facerank",
	Short: "Face attractiveness scoring and population ranking engine",
	Long: `Facerank scores face submissions against the whole population:
it extracts a face embedding with quality metrics, validates it against
configured quality floors, and ranks the user with a percentile-based
score, leaderboard position and similarity neighbors.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
