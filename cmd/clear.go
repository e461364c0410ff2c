package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every enrolled user",
	Long: `Remove every enrolled user from the face store.

This cannot be undone.

Example:
  face-id clear --yes`,
	Args: cobra.NoArgs,
	RunE: runClear,
}

func init() {
	rootCmd.AddCommand(clearCmd)

	clearCmd.Flags().Bool("yes", false, "Skip confirmation prompt")
}

func confirmAction(prompt string) bool {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	response, _ := reader.ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

func runClear(cmd *cobra.Command, args []string) error {
	skipConfirm := mustGetBool(cmd, "yes")

	a, err := newApp(false, false)
	if err != nil {
		return err
	}
	defer a.close()

	count := a.recognizer.Count()
	if count == 0 {
		fmt.Println("Face store is already empty")
		return nil
	}

	if !skipConfirm && !confirmAction(fmt.Sprintf("Remove all %d faces from %s? [y/N]: ", count, a.store.Path())) {
		fmt.Println("Cancelled")
		return nil
	}

	if err := a.recognizer.Clear(); err != nil {
		return err
	}
	fmt.Printf("Removed %d faces\n", count)
	return nil
}
