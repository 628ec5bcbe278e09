package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/romiluz13/memory-engineering/pkg/memory"
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Read and update structured memory documents",
}

var memoryReadCmd = &cobra.Command{
	Use:   "read [name]",
	Short: "Print one memory document, or all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runMemoryRead,
}

var memoryUpdateCmd = &cobra.Command{
	Use:   "update <name>",
	Short: "Write a memory document from stdin or --file",
	Long: `Write one memory document. Content is validated before anything is
stored: the document's dependencies must already exist and the content
must meet the quality bar. Rejected writes change nothing.`,
	Args: cobra.ExactArgs(1),
	RunE: runMemoryUpdate,
}

var memoryNoteCmd = &cobra.Command{
	Use:   "note <name>",
	Short: "Save an ephemeral note from stdin or --file",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemoryNote,
}

var memoryContentFile string

func init() {
	memoryUpdateCmd.Flags().StringVarP(&memoryContentFile, "file", "f", "", "read content from file instead of stdin")
	memoryNoteCmd.Flags().StringVarP(&memoryContentFile, "file", "f", "", "read content from file instead of stdin")
	memoryCmd.AddCommand(memoryReadCmd, memoryUpdateCmd, memoryNoteCmd)
	rootCmd.AddCommand(memoryCmd)
}

func runMemoryRead(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	svc, err := buildMemoryService(e)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	if len(args) == 1 {
		doc, err := svc.Read(ctx, projectID, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("# %s (v%d, accessed %d times)\n\n%s\n", doc.MemoryName, doc.Version, doc.AccessCount, doc.Content)
		return nil
	}

	docs, err := svc.ReadAll(ctx, projectID)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Println("No memories yet")
		return nil
	}
	for _, doc := range docs {
		fmt.Printf("=== %s (v%d) ===\n%s\n\n", doc.MemoryName, doc.Version, doc.Content)
	}
	return nil
}

func runMemoryUpdate(cmd *cobra.Command, args []string) error {
	content, err := readContent()
	if err != nil {
		return err
	}

	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	svc, err := buildMemoryService(e)
	if err != nil {
		return err
	}

	doc, err := svc.Update(cmd.Context(), projectID, args[0], content)
	if err != nil {
		printRejection(err)
		return err
	}
	fmt.Printf("Updated %s to version %d\n", doc.MemoryName, doc.Version)
	return nil
}

func runMemoryNote(cmd *cobra.Command, args []string) error {
	content, err := readContent()
	if err != nil {
		return err
	}

	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	svc, err := buildMemoryService(e)
	if err != nil {
		return err
	}

	doc, err := svc.SaveNote(cmd.Context(), projectID, args[0], content)
	if err != nil {
		return err
	}
	fmt.Printf("Saved note %s, expires %s\n", doc.MemoryName, doc.ExpiresAt.Format("2006-01-02"))
	return nil
}

func readContent() (string, error) {
	if memoryContentFile != "" {
		data, err := os.ReadFile(memoryContentFile)
		if err != nil {
			return "", fmt.Errorf("failed to read content file: %w", err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}

// printRejection surfaces actionable guidance for gated writes.
func printRejection(err error) {
	var qualityErr *memory.QualityError
	if errors.As(err, &qualityErr) {
		fmt.Fprintf(os.Stderr, "Content scored %d/100 (minimum %d)\n", qualityErr.Score, memory.MinPassingScore)
		for _, g := range qualityErr.Guidance {
			fmt.Fprintf(os.Stderr, "  - %s\n", g)
		}
		if qualityErr.Example != "" {
			fmt.Fprintf(os.Stderr, "\nExample skeleton:\n%s\n", qualityErr.Example)
		}
		return
	}
	var depErr *memory.DependencyError
	if errors.As(err, &depErr) {
		fmt.Fprintf(os.Stderr, "Write these memories first: %s\n", strings.Join(depErr.Missing, ", "))
	}
}
