package cmd

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/kozaktomas/face-id/internal/facematch"
	"github.com/spf13/cobra"
)

var identifyCmd = &cobra.Command{
	Use:   "identify <image>",
	Short: "Identify the person in a photo",
	Long: `Find the enrolled user closest to the first face in a photo.

A match is reported only when its distance is within the tolerance
(lower is stricter). Use --top to also list the closest candidates
regardless of tolerance.

Examples:
  face-id identify probe.jpg
  face-id identify probe.jpg --tolerance 0.5 --top 3 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runIdentify,
}

func init() {
	rootCmd.AddCommand(identifyCmd)

	identifyCmd.Flags().Float64("tolerance", 0, "Maximum distance for a match (default from MATCH_TOLERANCE)")
	identifyCmd.Flags().Int("top", 0, "Also show this many closest candidates")
	identifyCmd.Flags().Bool("json", false, "Output as JSON")
}

type identifyResult struct {
	Identified bool                  `json:"identified"`
	Match      *facematch.Match      `json:"match,omitempty"`
	Candidates []facematch.Candidate `json:"candidates,omitempty"`
}

func runIdentify(cmd *cobra.Command, args []string) error {
	image, err := readImageFile(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(false, true)
	if err != nil {
		return err
	}
	defer a.close()

	tolerance := a.recognizer.DefaultTolerance()
	if cmd.Flags().Changed("tolerance") {
		tolerance = mustGetFloat64(cmd, "tolerance")
	}
	top := mustGetInt(cmd, "top")

	probe, err := a.recognizer.ExtractFirst(context.Background(), image)
	if err != nil {
		return fmt.Errorf("failed to detect face: %w", err)
	}

	match, err := a.recognizer.Identify(probe, tolerance)
	if err != nil {
		return err
	}

	result := identifyResult{Identified: match != nil, Match: match}
	if top > 0 {
		if result.Candidates, err = a.recognizer.Nearest(probe, top); err != nil {
			return err
		}
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(result)
	}

	if match == nil {
		fmt.Printf("No matching face found (tolerance %.2f)\n", tolerance)
	} else {
		fmt.Printf("Identified user %s\n", match.UserID)
		fmt.Printf("  Distance:   %.4f\n", match.Distance)
		fmt.Printf("  Confidence: %.1f%%\n", match.Confidence*100)
		for _, k := range slices.Sorted(maps.Keys(match.Metadata)) {
			fmt.Printf("  %s: %v\n", k, match.Metadata[k])
		}
	}

	if len(result.Candidates) > 0 {
		fmt.Println("\nClosest candidates:")
		for i, c := range result.Candidates {
			fmt.Printf("  %d. %-20s distance %.4f\n", i+1, c.UserID, c.Distance)
		}
	}
	return nil
}
