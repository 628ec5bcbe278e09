package cli

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/romiluz13/memory-engineering/internal/observability"
	"github.com/romiluz13/memory-engineering/pkg/guard"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the background janitor and metrics endpoint",
	Long: `Keep the janitor running so expired ephemeral notes and aged-out
terminal executions get purged, and expose Prometheus metrics when
enabled in the config.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	log := e.logger()
	janitor := guard.NewJanitor(e.store, log)
	if err := janitor.Start(); err != nil {
		return err
	}
	defer janitor.Stop()

	// One eager sweep so a long-idle database is cleaned immediately.
	if err := janitor.Sweep(cmd.Context()); err != nil {
		log.Error().Err(err).Msg("Initial sweep failed")
	}

	var server *http.Server
	if e.cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.MetricsHandler())
		server = &http.Server{Addr: e.cfg.Metrics.Listen, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("Metrics server failed")
			}
		}()
		fmt.Printf("Metrics on http://%s/metrics\n", e.cfg.Metrics.Listen)
	}

	fmt.Println("Janitor running, Ctrl-C to stop")
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case <-stop:
	case <-cmd.Context().Done():
	}

	if server != nil {
		server.Close()
	}
	return nil
}
