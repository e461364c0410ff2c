package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-id/internal/facestore"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <user-id> <image>",
	Short: "Enroll a user from a photo",
	Long: `Detect the face in a photo and store it under the given user ID.
An existing enrollment of the same user is replaced. When the photo
contains several faces the first detected one is used.

Examples:
  face-id enroll 42 alice.jpg --meta name=Alice --meta email=alice@example.com
  cat alice.jpg | face-id enroll 42 -`,
	Args: cobra.ExactArgs(2),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().StringToString("meta", nil, "Metadata as key=value (repeatable)")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	image, err := readImageFile(args[1])
	if err != nil {
		return err
	}

	a, err := newApp(false, false)
	if err != nil {
		return err
	}
	defer a.close()

	rec, err := a.recognizer.EnrollImage(context.Background(), facestore.UserID(args[0]), image, metadataFlag(cmd, "meta"))
	if err != nil {
		return fmt.Errorf("failed to enroll: %w", err)
	}

	fmt.Printf("Enrolled user %s (%d faces in store)\n", rec.UserID, a.recognizer.Count())
	return nil
}
