package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var configDir string

var root = &cobra.Command{
	Use:           "coachspace",
	Short:         "coachspace - coaching practice backend",
	SilenceErrors: true,
	SilenceUsage:  true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

func init() {
	root.PersistentFlags().StringVar(&configDir, "config-dir", ".", "directory searched for config.yaml and .env")

	root.AddCommand(newServeCmd())
	root.AddCommand(newBackupCmd())
	root.AddCommand(newRestoreCmd())
	root.AddCommand(newVersionCmd())
}

func main() {
	if err := root.Execute(); err != nil {
		fmt.Fprintf(color.Error, "%s %s\n", color.RedString("error:"), err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of coachspace",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("coachspace %s\n", version)
		},
	}
}
