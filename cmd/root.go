package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/iluobei/miaomiaowu-sub001/config"
	"github.com/iluobei/miaomiaowu-sub001/database"
	"github.com/iluobei/miaomiaowu-sub001/logger"

	"github.com/spf13/cobra"
)

var (
	cfgFile          string
	dbPath           string // Bound to --dbpath flag
	appLogPathFlag   string
	relayLogPathFlag string
	logLevelFlag     string
)

// Helper function to expand tilde in this package too
func expandTildeCmd(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}

var rootCmd = &cobra.Command{
	Use:   "miaomiaowu",
	Short: "Web panel for managing Clash/Mihomo subscriptions and configurations",
	Long: `miaomiaowu is a small self-hosted panel for proxy subscriptions.

It pulls subscription URLs on a schedule, keeps the resulting nodes and
configuration documents in SQLite, lets you edit proxy groups and rules
through guarded edit sessions, and can expose local HTTP/SOCKS5 relay
listeners that forward through a chosen egress.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Init(cfgFile, appLogPathFlag, relayLogPathFlag, logLevelFlag); err != nil {
			return fmt.Errorf("failed to initialize config in PersistentPreRunE: %w", err)
		}

		finalDBPath := dbPath
		if finalDBPath == "" {
			finalDBPath = config.AppConfig.Database.Path
		}
		expandedPath, err := expandTildeCmd(finalDBPath)
		if err != nil {
			logger.Error("Error expanding tilde in database path '%s': %v. Using original.", finalDBPath, err)
		} else {
			finalDBPath = expandedPath
		}
		if finalDBPath == "" {
			logger.Error("PersistentPreRunE: Database path is empty after checking flag and config! Falling back to 'miaomiaowu.db' in CWD.")
			finalDBPath = "miaomiaowu.db"
		}

		if err := database.InitDB(finalDBPath); err != nil {
			return fmt.Errorf("failed to initialize database at %s: %w", finalDBPath, err)
		}

		isSuppressedCmd := false
		if cmd.Name() == "completion" ||
			cmd.Name() == cobra.ShellCompRequestCmd ||
			cmd.Name() == cobra.ShellCompNoDescRequestCmd ||
			cmd.Name() == "start" {
			isSuppressedCmd = true
		}

		if !isSuppressedCmd {
			logger.Info("Database initialized at: %s", finalDBPath)
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/miaomiaowu/config.yaml or ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "dbpath", "", "path to SQLite database file (overrides config/default)")
	rootCmd.PersistentFlags().StringVar(&appLogPathFlag, "app-log", "", "path for the application log file (overrides config/default)")
	rootCmd.PersistentFlags().StringVar(&relayLogPathFlag, "relay-log", "", "path for the relay log file (overrides config/default)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level: DEBUG, INFO, ERROR (overrides config/default)")
}
