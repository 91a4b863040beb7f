// Command relayd is the HTTP/1.0 file-serving daemon spec.md describes:
// an acceptor, a round-robin dispatch monitor, and a pool of workers
// that serve ./resources and persist POST bodies into a keyed store.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/cuemby/relayd/pkg/config"
	"github.com/cuemby/relayd/pkg/dispatch"
	"github.com/cuemby/relayd/pkg/events"
	"github.com/cuemby/relayd/pkg/log"
	"github.com/cuemby/relayd/pkg/metrics"
	"github.com/cuemby/relayd/pkg/store"
	"github.com/cuemby/relayd/pkg/types"
	"github.com/cuemby/relayd/pkg/worker"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "relayd",
	Short: "relayd - a small HTTP/1.0 file-serving daemon",
	Long: `relayd accepts connections on one TCP port, fans them out round-robin
to a fixed pool of workers, and serves static files from a document root,
persisting POST bodies into a keyed store. It hot-reloads its request
handler from an optional plugin artifact without restarting.`,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the daemon",
	Long: `Start the acceptor, monitor and worker pool. The worker count (-c)
is required and must be >= 1, matching spec.md §6's CLI contract.`,
	RunE: runServe,
}

func init() {
	defaults := config.Default()

	serveCmd.Flags().IntP("workers", "c", 0, "Number of worker slots (required, >= 1)")
	serveCmd.Flags().Int("port", defaults.Port, "TCP port the acceptor listens on")
	serveCmd.Flags().String("docroot", defaults.DocRoot, "Document root static files are served from")
	serveCmd.Flags().String("artifact", defaults.Artifact, "Path to the hot-reloaded handler plugin")
	serveCmd.Flags().String("store-dir", defaults.StoreDir, "Directory holding the request log store")
	serveCmd.Flags().String("metrics-addr", defaults.MetricsAddr, "Listen address for /metrics and /health (empty disables)")
	serveCmd.Flags().String("config", "", "Optional YAML config file; flags override its values")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := flagsToConfig(cmd)
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		fileCfg, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = config.Merge(cfg, fileCfg)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s relayd starting: %d workers, port %d, docroot %s\n", green("✓"), cfg.Workers, cfg.Port, cfg.DocRoot)

	st, err := store.Open(cfg.StoreDir)
	if err != nil {
		metrics.SetStoreUp(false, err.Error())
		return fmt.Errorf("relayd: open store: %w", err)
	}
	metrics.SetStoreUp(true, "")
	defer func() {
		metrics.SetStoreUp(false, "closed")
		st.Close()
	}()

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.MetricsAddr != "" {
		startMetricsServer(ctx, cfg.MetricsAddr)
		fmt.Printf("%s metrics/health listening on %s\n", green("✓"), cfg.MetricsAddr)
	}

	fromAcceptor := make(chan *types.Connection)
	toAcceptor := make(chan *types.Connection)

	workerCfg := worker.Config{
		DocRoot:  cfg.DocRoot,
		Artifact: cfg.Artifact,
		Store:    st,
		Broker:   broker,
	}

	mon := dispatch.NewMonitor(cfg.Workers, fromAcceptor, toAcceptor, workerCfg, broker)
	go mon.Run(ctx)

	acc := dispatch.NewAcceptor(cfg.Port, fromAcceptor, toAcceptor, broker)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nshutting down...")
		cancel()
	}()

	fmt.Printf("%s relayd is running. Press Ctrl+C to stop.\n", green("✓"))
	if err := acc.Run(ctx); err != nil {
		return fmt.Errorf("relayd: acceptor: %w", err)
	}

	fmt.Printf("%s shutdown complete\n", green("✓"))
	return nil
}

func flagsToConfig(cmd *cobra.Command) config.Config {
	workers, _ := cmd.Flags().GetInt("workers")
	port, _ := cmd.Flags().GetInt("port")
	docRoot, _ := cmd.Flags().GetString("docroot")
	artifact, _ := cmd.Flags().GetString("artifact")
	storeDir, _ := cmd.Flags().GetString("store-dir")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	logLevel, _ := cmd.Root().PersistentFlags().GetString("log-level")
	logJSON, _ := cmd.Root().PersistentFlags().GetBool("log-json")

	return config.Config{
		Workers:     workers,
		Port:        port,
		DocRoot:     docRoot,
		Artifact:    artifact,
		StoreDir:    storeDir,
		MetricsAddr: metricsAddr,
		LogLevel:    logLevel,
		LogJSON:     logJSON,
	}
}

func startMetricsServer(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
}
