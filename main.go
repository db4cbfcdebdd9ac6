package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "face-vision",
	Short: "Face detection, encoding and perceptual hashing service",
	Long: `face-vision locates faces in photos with an adaptive multi-scale strategy,
encodes them as 128-element descriptors, scores their quality and compares
images by perceptual hash. Run "serve" for the HTTP API or use the batch
commands on local files.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env is optional
	_ = godotenv.Load()
}
