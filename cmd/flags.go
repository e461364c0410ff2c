package cmd

import (
	"fmt"

	"github.com/kozaktomas/face-id/internal/facestore"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// mustFlag reads a flag registered in init(). A lookup error means the
// flag name or type is wrong in code, so it panics.
func mustFlag[T any](cmd *cobra.Command, name string, get func(*pflag.FlagSet, string) (T, error)) T {
	val, err := get(cmd.Flags(), name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

func mustGetBool(cmd *cobra.Command, name string) bool {
	return mustFlag(cmd, name, (*pflag.FlagSet).GetBool)
}

func mustGetInt(cmd *cobra.Command, name string) int {
	return mustFlag(cmd, name, (*pflag.FlagSet).GetInt)
}

func mustGetString(cmd *cobra.Command, name string) string {
	return mustFlag(cmd, name, (*pflag.FlagSet).GetString)
}

func mustGetFloat64(cmd *cobra.Command, name string) float64 {
	return mustFlag(cmd, name, (*pflag.FlagSet).GetFloat64)
}

// metadataFlag turns a repeatable key=value flag into record metadata.
// Values stay strings, the same as HTTP form fields.
func metadataFlag(cmd *cobra.Command, name string) facestore.Metadata {
	pairs := mustFlag(cmd, name, (*pflag.FlagSet).GetStringToString)
	metadata := make(facestore.Metadata, len(pairs))
	for k, v := range pairs {
		metadata[k] = v
	}
	return metadata
}
