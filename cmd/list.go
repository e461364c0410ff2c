package cmd

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled users",
	Long: `List enrolled users ordered by user ID.

--query keeps users whose ID equals the query or whose name contains it,
ignoring case and diacritics.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringP("query", "q", "", "Filter by user ID or name")
	listCmd.Flags().Bool("json", false, "Output as JSON")
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := newApp(false, true)
	if err != nil {
		return err
	}
	defer a.close()

	entries, err := a.recognizer.List(mustGetString(cmd, "query"))
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(map[string]any{"count": len(entries), "faces": entries})
	}

	if len(entries) == 0 {
		fmt.Println("No faces enrolled")
		return nil
	}
	for _, e := range entries {
		parts := make([]string, 0, len(e.Metadata))
		for _, k := range slices.Sorted(maps.Keys(e.Metadata)) {
			parts = append(parts, fmt.Sprintf("%s=%v", k, e.Metadata[k]))
		}
		fmt.Printf("%-12s %s\n", e.UserID, strings.Join(parts, " "))
	}
	fmt.Printf("\n%d faces\n", len(entries))
	return nil
}
