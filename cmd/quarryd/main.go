package main

import (
	"fmt"
	"os"

	"github.com/quarrylabs/quarry/internal/cli"
	"github.com/quarrylabs/quarry/internal/cli/admin"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "quarryd",
		Short: "Quarry daemon",
		Long:  "Quarry daemon for running the API server and ingestion pipeline",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
