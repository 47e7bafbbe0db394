package cmd

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/iluobei/miaomiaowu-sub001/api"
	"github.com/iluobei/miaomiaowu-sub001/api/router/handlers"
	"github.com/iluobei/miaomiaowu-sub001/config"
	"github.com/iluobei/miaomiaowu-sub001/core"
	"github.com/iluobei/miaomiaowu-sub001/database"
	"github.com/iluobei/miaomiaowu-sub001/logger"
	"github.com/iluobei/miaomiaowu-sub001/models"

	"github.com/spf13/cobra"
)

var standaloneServerPort string

// initPanelServices builds the long-lived service objects the API handlers
// depend on and registers them with the handler package. The returned values
// let callers run the background loops as well.
func initPanelServices() (*core.EditorStore, *core.SyncManager, *core.ProbePoller, *core.NodeChecker, error) {
	userAgent := config.AppConfig.Fetch.UserAgent
	if stored, err := database.GetSetting(models.SubscriptionUserAgentKey); err == nil && stored != "" {
		userAgent = stored
	}

	fetcher, err := core.NewFetcher(
		userAgent,
		time.Duration(config.AppConfig.Fetch.TimeoutSeconds)*time.Second,
		int64(config.AppConfig.Fetch.MaxBodyMB)<<20,
		config.AppConfig.Fetch.EgressProxy,
	)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("building subscription fetcher: %w", err)
	}

	editorStore := core.NewEditorStore(0)
	syncManager := core.NewSyncManager(fetcher)
	probePoller := core.NewProbePoller(0)
	nodeChecker := core.NewNodeChecker(config.AppConfig.DNS.Resolver, 0)

	handlers.SetServices(editorStore, syncManager, probePoller, nodeChecker)
	return editorStore, syncManager, probePoller, nodeChecker, nil
}

// buildPanelMux mounts the API under /api and serves the static UI from
// everything else.
func buildPanelMux() (http.Handler, error) {
	apiRouter, err := api.NewRouter()
	if err != nil {
		return nil, err
	}

	staticFileDir := config.AppConfig.Server.StaticDir
	if staticFileDir == "" {
		staticFileDir = "./static"
	}
	fileServer := http.FileServer(http.Dir(staticFileDir))

	mainMux := http.NewServeMux()
	mainMux.Handle("/api/", http.StripPrefix("/api", apiRouter))
	mainMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			// Shouldn't be hit if the /api/ handle above works, but acts as a safeguard.
			http.StripPrefix("/api", apiRouter).ServeHTTP(w, r)
			return
		}
		fileServer.ServeHTTP(w, r)
	})
	return mainMux, nil
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Starts the web UI and API server only (no relay, no schedulers)",
	Run: func(cmd *cobra.Command, args []string) {
		portToUse := standaloneServerPort
		if !cmd.Flags().Changed("port") {
			portToUse = config.AppConfig.Server.Port
		}
		if portToUse == "" {
			portToUse = "8998"
		}

		editorStore, _, _, _, err := initPanelServices()
		if err != nil {
			logger.Fatal("Server Command: %v", err)
			return
		}
		go editorStore.Janitor(context.Background(), time.Minute)

		mainMux, err := buildPanelMux()
		if err != nil {
			logger.Fatal("Server Command: building router failed: %v", err)
			return
		}

		logger.Info("Server Command: Listening on :%s (UI at /, API under /api)", portToUse)
		if err := http.ListenAndServe(":"+portToUse, mainMux); err != nil {
			logger.Fatal("Could not start server: %v", err)
		}
	},
}

func init() {
	serverCmd.Flags().StringVarP(&standaloneServerPort, "port", "p", "8998", "Port for the server to listen on (overrides config)")
	rootCmd.AddCommand(serverCmd)
}
