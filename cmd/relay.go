package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/iluobei/miaomiaowu-sub001/config"
	"github.com/iluobei/miaomiaowu-sub001/core"
	"github.com/iluobei/miaomiaowu-sub001/logger"

	"github.com/spf13/cobra"
)

var (
	standaloneRelayHTTPPort  string
	standaloneRelaySocksPort string
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Starts only the HTTP and SOCKS5 relay listeners",
	Long: `Starts the relay listeners without the web UI. Connections are forwarded
directly, or through the egress proxy configured under relay.egress_proxy,
and every finished connection is recorded in the traffic log.`,
	Run: func(cmd *cobra.Command, args []string) {
		httpPort := standaloneRelayHTTPPort
		if !cmd.Flags().Changed("http-port") {
			httpPort = config.AppConfig.Relay.HTTPPort
		}
		if httpPort == "" {
			httpPort = "8997"
		}

		socksPort := standaloneRelaySocksPort
		if !cmd.Flags().Changed("socks-port") {
			socksPort = config.AppConfig.Relay.SocksPort
		}
		if socksPort == "" {
			socksPort = "8996"
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			sig := <-sigs
			logger.RelayInfo("Received signal: %s. Shutting down relay...", sig)
			cancel()
		}()

		relay := core.NewRelay(httpPort, socksPort, config.AppConfig.Relay.EgressProxy)
		if err := relay.Run(ctx); err != nil {
			logger.RelayError("Relay exited with error: %v", err)
			os.Exit(1)
		}
	},
}

func init() {
	relayCmd.Flags().StringVar(&standaloneRelayHTTPPort, "http-port", "8997", "Port for the HTTP relay listener (overrides config)")
	relayCmd.Flags().StringVar(&standaloneRelaySocksPort, "socks-port", "8996", "Port for the SOCKS5 relay listener (overrides config)")
	rootCmd.AddCommand(relayCmd)
}
