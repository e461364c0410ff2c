package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var storePath string

var rootCmd = &cobra.Command{
	Use:   "face-id",
	Short: "Enroll and identify faces against a local face store",
	Long: `Face ID keeps one face embedding per user in a local store file and
identifies new photos by finding the closest enrolled face.

It can run as an HTTP API (serve), be used from the command line, or
bulk-import users from a MySQL, PostgreSQL or SQLite database.

Commands that change the store (serve, enroll, remove, clear, import) lock
it for as long as they run; list and identify only read it and can run
next to a server.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "Path to the face store file (overrides FACE_STORE_PATH)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
