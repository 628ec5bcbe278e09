package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/romiluz13/memory-engineering/pkg/codeindex"
)

var indexWatch bool

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Build the code index for a project",
	Long: `Walk the source tree, chunk every recognized source file, embed the
chunks, and replace the project's index. With --watch the index is
rebuilt whenever source files change.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&indexWatch, "watch", false, "keep running and re-index on changes")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	root := "."
	if len(args) == 1 {
		root = args[0]
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", root, err)
	}

	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	indexer := codeindex.NewIndexer(e.store, nil, e.provider, e.logger())
	ctx := cmd.Context()

	summary, err := indexer.Index(ctx, projectID, abs)
	if err != nil {
		return err
	}
	fmt.Printf("Indexed %d files into %d chunks (%d embedded) in %s\n",
		summary.Files, summary.Chunks, summary.Embedded, summary.Elapsed.Round(time.Millisecond))

	if !indexWatch && !e.cfg.Index.Watch {
		return nil
	}

	dirty := make(chan struct{}, 1)
	watcher, err := codeindex.NewWatcher(e.logger(), func() {
		select {
		case dirty <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return err
	}
	defer watcher.Stop()
	if err := watcher.Watch(abs); err != nil {
		return err
	}
	fmt.Println("Watching for changes, Ctrl-C to stop")

	log := e.logger()
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	for {
		select {
		case <-dirty:
			if _, err := indexer.Index(ctx, projectID, abs); err != nil {
				log.Error().Err(err).Msg("Re-index failed")
			}
		case <-stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
