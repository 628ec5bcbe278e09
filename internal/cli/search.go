package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/romiluz13/memory-engineering/pkg/search"
	"github.com/romiluz13/memory-engineering/pkg/store"
)

var (
	searchMode     string
	searchLimit    int
	searchFilePath string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search memories and indexed code",
	Long: `Run a hybrid vector plus lexical search across the project's memory
documents and code chunks. Falls back to lexical search when no
embeddings are available.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchMode, "mode", "", "search mode: text, vector, or hybrid")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "maximum results")
	searchCmd.Flags().StringVar(&searchFilePath, "path", "", "restrict code results to paths containing this substring")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	mode := search.Mode(searchMode)
	if searchMode == "" {
		mode = search.Mode(e.cfg.Search.DefaultMode)
	}
	limit := searchLimit
	if limit == 0 {
		limit = e.cfg.Search.DefaultLimit
	}

	engine := search.NewEngine(e.store, e.provider, e.logger())
	resp, err := engine.Search(cmd.Context(), search.Request{
		ProjectID: projectID,
		Query:     strings.Join(args, " "),
		Mode:      mode,
		Limit:     limit,
		FilePath:  searchFilePath,
	})
	if err != nil {
		return err
	}

	if resp.Fallback {
		fmt.Println("(no embeddings available, ran text search)")
	}
	if len(resp.Results) == 0 {
		fmt.Println("No results")
		return nil
	}
	for i, r := range resp.Results {
		switch r.Source {
		case store.SourceCode:
			fmt.Printf("%2d. [code]   %s (%s)  score=%.3f\n", i+1, r.Title, r.FilePath, r.Score)
		default:
			fmt.Printf("%2d. [memory] %s  score=%.3f\n", i+1, r.Title, r.Score)
		}
		for _, line := range strings.Split(r.Preview, "\n") {
			fmt.Printf("      %s\n", line)
		}
	}
	return nil
}
