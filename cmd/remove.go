package cmd

import (
	"errors"
	"fmt"

	"github.com/kozaktomas/face-id/internal/facestore"
	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:   "remove <user-id>",
	Short: "Remove an enrolled user",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

func init() {
	rootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	a, err := newApp(false, false)
	if err != nil {
		return err
	}
	defer a.close()

	err = a.recognizer.Remove(facestore.UserID(args[0]))
	if errors.Is(err, facestore.ErrNotFound) {
		return fmt.Errorf("no face found for user_id: %s", args[0])
	}
	if err != nil {
		return err
	}

	fmt.Printf("Removed user %s\n", args[0])
	return nil
}
