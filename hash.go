package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/face-vision/internal/imaging"
	"github.com/example/face-vision/internal/phash"
)

var (
	hashSize  int
	hashNoBar bool
)

var hashCmd = &cobra.Command{
	Use:   "hash <image>...",
	Short: "Print perceptual hashes of local images",
	Long: `Computes the DCT perceptual hash of each image. With exactly two images the
Hamming distance between them is printed as well.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runHash,
}

func init() {
	hashCmd.Flags().IntVar(&hashSize, "size", phash.DefaultSize, "Hash side length (4-32)")
	hashCmd.Flags().BoolVar(&hashNoBar, "no-progress", false, "Disable the progress bar")
	rootCmd.AddCommand(hashCmd)
}

func runHash(cmd *cobra.Command, args []string) error {
	if err := phash.ValidateSize(hashSize); err != nil {
		return err
	}

	bar := newProgressBar(len(args), "Computing hashes", hashNoBar || len(args) < 2)
	fingerprints := make([]phash.Fingerprint, len(args))
	for i, path := range args {
		fp, err := hashFile(path, hashSize)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fingerprints[i] = fp
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	out := cmd.OutOrStdout()
	for i, path := range args {
		fmt.Fprintf(out, "%s  %s\n", fingerprints[i].Hex(), path)
	}
	if len(args) == 2 {
		d, err := fingerprints[0].Distance(fingerprints[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "distance: %d/%d\n", d, fingerprints[0].Bits())
	}
	return nil
}

func hashFile(path string, size int) (phash.Fingerprint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return phash.Fingerprint{}, err
	}
	img, _, err := imaging.Decode(data, imaging.DefaultMaxPixels)
	if err != nil {
		return phash.Fingerprint{}, err
	}
	return phash.Compute(img, size)
}
