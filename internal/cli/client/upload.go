package client

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

// UploadRequest represents the document upload API request.
type UploadRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
}

// UploadResponse represents the document upload API response.
type UploadResponse struct {
	UploadURL string `json:"upload_url"`
	Key       string `json:"key"`
}

// ProcessRequest represents the document process API request.
type ProcessRequest struct {
	Key      string `json:"key"`
	Language string `json:"language,omitempty"`
}

// ProcessResponse represents the document process API response.
type ProcessResponse struct {
	DocID    string `json:"doc_id"`
	Chunks   int    `json:"chunks"`
	Language string `json:"language"`
}

// UploadCmd creates the upload command.
func UploadCmd() *cobra.Command {
	var (
		contentType string
		language    string
		process     bool
	)

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a document",
		Long:  "Uploads an extracted-text document to the raw bucket, optionally processing it into chunks.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd, args[0], contentType, language, process)
		},
	}

	AddAPIFlags(cmd)
	cmd.Flags().StringVar(&contentType, "content-type", "text/plain", "Content type of the uploaded file")
	cmd.Flags().StringVarP(&language, "language", "l", "", "Document language for chunking")
	cmd.Flags().BoolVar(&process, "process", false, "Chunk and enqueue the document after uploading")

	return cmd
}

func runUpload(cmd *cobra.Command, path, contentType, language string, process bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Post("/documents", UploadRequest{
		Filename:    filepath.Base(path),
		ContentType: contentType,
	})
	if err != nil {
		return err
	}

	var upload UploadResponse
	if err := json.Unmarshal(resp.Data, &upload); err != nil {
		return fmt.Errorf("failed to parse upload response: %w", err)
	}

	if err := api.PutFile(upload.UploadURL, path, contentType); err != nil {
		return err
	}
	fmt.Printf("Uploaded %s as %s\n", path, upload.Key)

	if !process {
		return nil
	}
	return runProcess(api, upload.Key, language)
}

// ProcessCmd creates the process command.
func ProcessCmd() *cobra.Command {
	var language string

	cmd := &cobra.Command{
		Use:   "process <key>",
		Short: "Process an uploaded document",
		Long:  "Chunks a previously uploaded document and enqueues its chunks for embedding.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			return runProcess(api, args[0], language)
		},
	}

	AddAPIFlags(cmd)
	cmd.Flags().StringVarP(&language, "language", "l", "", "Document language for chunking")

	return cmd
}

func runProcess(api *APIClient, key, language string) error {
	resp, err := api.Post("/documents/process", ProcessRequest{Key: key, Language: language})
	if err != nil {
		return err
	}

	var result ProcessResponse
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return fmt.Errorf("failed to parse process response: %w", err)
	}

	fmt.Printf("Processed %s: %d chunks (language %s)\n", result.DocID, result.Chunks, result.Language)
	return nil
}
