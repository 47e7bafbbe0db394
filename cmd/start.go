package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/iluobei/miaomiaowu-sub001/config"
	"github.com/iluobei/miaomiaowu-sub001/core"
	"github.com/iluobei/miaomiaowu-sub001/logger"

	"github.com/spf13/cobra"
)

var (
	startServerPort     string
	startRelayHTTPPort  string
	startRelaySocksPort string
	startNoRelay        bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Starts all panel services (API server, relay listeners and schedulers)",
	Long: `Starts the web UI/API server, the HTTP and SOCKS5 relay listeners, the
subscription sync scheduler and the probe poller concurrently.
Press Ctrl+C to gracefully shut down all services.`,
	Run: func(cmd *cobra.Command, args []string) {
		actualServerPort := startServerPort
		if !cmd.Flags().Changed("server-port") {
			actualServerPort = config.AppConfig.Server.Port
		}
		if actualServerPort == "" {
			actualServerPort = "8998"
		}

		actualRelayHTTPPort := startRelayHTTPPort
		if !cmd.Flags().Changed("relay-http-port") {
			actualRelayHTTPPort = config.AppConfig.Relay.HTTPPort
		}
		if actualRelayHTTPPort == "" {
			actualRelayHTTPPort = "8997"
		}

		actualRelaySocksPort := startRelaySocksPort
		if !cmd.Flags().Changed("relay-socks-port") {
			actualRelaySocksPort = config.AppConfig.Relay.SocksPort
		}
		if actualRelaySocksPort == "" {
			actualRelaySocksPort = "8996"
		}

		editorStore, syncManager, probePoller, _, err := initPanelServices()
		if err != nil {
			logger.Fatal("Start Command: %v", err)
			return
		}

		var wg sync.WaitGroup

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// --- API server ---
		wg.Add(1)
		go func(parentCtx context.Context) {
			defer wg.Done()

			mainMux, err := buildPanelMux()
			if err != nil {
				logger.Error("Start Command Goroutine(API): building router failed: %v", err)
				cancel()
				return
			}

			server := &http.Server{
				Addr:    ":" + actualServerPort,
				Handler: mainMux,
			}

			go func() {
				<-parentCtx.Done()
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					logger.Error("Start Command Goroutine(API): Graceful shutdown failed: %v", err)
				} else {
					logger.Info("Start Command Goroutine(API): Gracefully stopped.")
				}
			}()

			logger.Info("Start Command Goroutine(API): Listening on :%s", actualServerPort)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Start Command Goroutine(API): ListenAndServe error: %v", err)
				cancel()
			}
		}(ctx)

		// --- Relay listeners ---
		if !startNoRelay {
			wg.Add(1)
			go func(parentCtx context.Context) {
				defer wg.Done()
				relay := core.NewRelay(actualRelayHTTPPort, actualRelaySocksPort, config.AppConfig.Relay.EgressProxy)
				if err := relay.Run(parentCtx); err != nil {
					logger.RelayError("Start Command Goroutine(Relay): %v", err)
					cancel()
				}
			}(ctx)
		}

		// --- Subscription sync scheduler ---
		wg.Add(1)
		go func(parentCtx context.Context) {
			defer wg.Done()
			interval := time.Duration(config.AppConfig.Sync.SchedulerIntervalSeconds) * time.Second
			syncManager.RunScheduler(parentCtx, interval)
		}(ctx)

		// --- Probe poller ---
		wg.Add(1)
		go func(parentCtx context.Context) {
			defer wg.Done()
			interval := time.Duration(config.AppConfig.Probe.SchedulerIntervalSeconds) * time.Second
			retention := time.Duration(config.AppConfig.Probe.SampleRetentionDays) * 24 * time.Hour
			probePoller.RunScheduler(parentCtx, interval, retention)
		}(ctx)

		// --- Edit session janitor ---
		wg.Add(1)
		go func(parentCtx context.Context) {
			defer wg.Done()
			editorStore.Janitor(parentCtx, time.Minute)
		}(ctx)

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

		logger.Info("Start Command: All service goroutines launched. Press Ctrl+C to exit.")

		select {
		case sig := <-sigs:
			logger.Info("Start Command: Received signal: %s. Initiating shutdown...", sig)
		case <-ctx.Done():
			logger.Info("Start Command: Context cancelled (likely due to a service error). Initiating shutdown...")
		}

		cancel()

		shutdownComplete := make(chan struct{})
		go func() {
			wg.Wait()
			close(shutdownComplete)
		}()

		select {
		case <-shutdownComplete:
			logger.Info("Start Command: All services shut down.")
		case <-time.After(10 * time.Second):
			logger.Error("Start Command: Shutdown timed out. Forcing exit.")
		}
	},
}

func init() {
	startCmd.Flags().StringVar(&startServerPort, "server-port", "8998", "Port for the API server (overrides config)")
	startCmd.Flags().StringVar(&startRelayHTTPPort, "relay-http-port", "8997", "Port for the HTTP relay listener (overrides config)")
	startCmd.Flags().StringVar(&startRelaySocksPort, "relay-socks-port", "8996", "Port for the SOCKS5 relay listener (overrides config)")
	startCmd.Flags().BoolVar(&startNoRelay, "no-relay", false, "Do not start the relay listeners")
	rootCmd.AddCommand(startCmd)
}
