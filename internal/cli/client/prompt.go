package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// ReloadResponse represents the prompt reload API response.
type ReloadResponse struct {
	Version string `json:"version"`
}

// PromptCmd creates the prompt command group.
func PromptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Manage the answer-generation prompt",
	}

	cmd.AddCommand(promptReloadCmd())

	return cmd
}

func promptReloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Reload the prompt template",
		Long:  "Forces the server to refresh its cached prompt template from the store.",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Post("/prompts/reload", nil)
			if err != nil {
				return err
			}

			var reload ReloadResponse
			if err := json.Unmarshal(resp.Data, &reload); err != nil {
				return fmt.Errorf("failed to parse reload response: %w", err)
			}

			fmt.Printf("Prompt template reloaded (version %s)\n", reload.Version)
			return nil
		},
	}

	AddAPIFlags(cmd)

	return cmd
}
