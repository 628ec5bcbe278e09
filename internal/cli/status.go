package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what the project's memory and index contain",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()
	ctx := cmd.Context()

	docs, err := e.store.ListDocuments(ctx, projectID)
	if err != nil {
		return err
	}
	chunks, err := e.store.CountChunks(ctx, projectID)
	if err != nil {
		return err
	}
	embedded, err := e.store.HasEmbeddings(ctx, projectID)
	if err != nil {
		return err
	}

	fmt.Printf("Project: %s\n", projectID)
	fmt.Printf("Embedding provider: %s\n", e.cfg.Embedding.Provider)
	fmt.Printf("Indexed chunks: %d\n", chunks)
	fmt.Printf("Embeddings present: %v\n", embedded)
	fmt.Printf("Memory documents: %d\n", len(docs))
	for _, doc := range docs {
		marker := " "
		if doc.HasVector {
			marker = "*"
		}
		fmt.Printf("  %s %-16s v%-3d accessed %d times\n", marker, doc.MemoryName, doc.Version, doc.AccessCount)
	}
	return nil
}
