package main

import (
	"fmt"
	"os"

	"github.com/quarrylabs/quarry/internal/cli"
	"github.com/quarrylabs/quarry/internal/cli/client"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "quarry",
		Short: "Quarry client",
		Long:  "Client for a running quarry server: upload documents, ask questions, manage prompts",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(client.AskCmd())
	rootCmd.AddCommand(client.UploadCmd())
	rootCmd.AddCommand(client.ProcessCmd())
	rootCmd.AddCommand(client.PromptCmd())

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
