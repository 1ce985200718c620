package client

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// AskRequest represents the query API request.
type AskRequest struct {
	Question    string  `json:"question"`
	MaxResults  int     `json:"max_results,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
}

// AnswerEvent is one server-sent event from the query stream.
type AnswerEvent struct {
	Fragment      string `json:"chunk,omitempty"`
	Done          bool   `json:"done,omitempty"`
	PromptVersion string `json:"prompt_version,omitempty"`
	Error         string `json:"error,omitempty"`
	Sources       []struct {
		URI   string  `json:"uri"`
		Score float32 `json:"score"`
	} `json:"sources,omitempty"`
}

// AskCmd creates the ask command.
func AskCmd() *cobra.Command {
	var (
		maxResults  int
		temperature float32
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question",
		Long:  "Asks the knowledge base a question and streams the answer.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, args[0], maxResults, temperature)
		},
	}

	AddAPIFlags(cmd)
	cmd.Flags().IntVarP(&maxResults, "max-results", "n", 0, "Maximum number of context chunks")
	cmd.Flags().Float32VarP(&temperature, "temperature", "t", 0, "Generation temperature")

	return cmd
}

func runAsk(cmd *cobra.Command, question string, maxResults int, temperature float32) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	req := AskRequest{
		Question:    question,
		MaxResults:  maxResults,
		Temperature: temperature,
	}

	var terminal AnswerEvent
	err = api.PostStream("/query", req, func(payload []byte) error {
		var event AnswerEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return fmt.Errorf("failed to parse event: %w", err)
		}
		if event.Error != "" {
			return fmt.Errorf("generation failed: %s", event.Error)
		}
		if event.Done {
			terminal = event
			return nil
		}
		fmt.Print(event.Fragment)
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Println()

	if len(terminal.Sources) > 0 {
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Sources:")
		for _, s := range terminal.Sources {
			fmt.Fprintf(os.Stderr, "  %s (score %.3f)\n", s.URI, s.Score)
		}
	}
	if terminal.PromptVersion != "" {
		fmt.Fprintf(os.Stderr, "Prompt version: %s\n", terminal.PromptVersion)
	}

	return nil
}
