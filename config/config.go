package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/iluobei/miaomiaowu-sub001/logger"

	"github.com/spf13/viper"
)

type DefaultPaths struct {
	ConfigDir    string
	LogPathApp   string
	LogPathRelay string
	DBPath       string
	StaticDir    string
	LogLevel     string
}

type Configuration struct {
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	Server struct {
		Port      string `mapstructure:"port"`
		LogPath   string `mapstructure:"log_path"`
		StaticDir string `mapstructure:"static_dir"`
	} `mapstructure:"server"`
	Relay struct {
		HTTPPort    string `mapstructure:"http_port"`
		SocksPort   string `mapstructure:"socks_port"`
		LogPath     string `mapstructure:"log_path"`
		EgressProxy string `mapstructure:"egress_proxy"` // optional socks5://host:port for outbound dials
	} `mapstructure:"relay"`
	Fetch struct {
		UserAgent      string `mapstructure:"user_agent"`
		TimeoutSeconds int    `mapstructure:"timeout_seconds"`
		MaxBodyMB      int    `mapstructure:"max_body_mb"`
		EgressProxy    string `mapstructure:"egress_proxy"` // optional socks5://host:port for subscription downloads
	} `mapstructure:"fetch"`
	Sync struct {
		SchedulerIntervalSeconds int `mapstructure:"scheduler_interval_seconds"`
	} `mapstructure:"sync"`
	Probe struct {
		SchedulerIntervalSeconds int `mapstructure:"scheduler_interval_seconds"`
		SampleRetentionDays      int `mapstructure:"sample_retention_days"`
	} `mapstructure:"probe"`
	Auth struct {
		JWTSecret       string `mapstructure:"jwt_secret"`
		TokenTTLMinutes int    `mapstructure:"token_ttl_minutes"`
	} `mapstructure:"auth"`
	DNS struct {
		Resolver string `mapstructure:"resolver"` // host:port used by node checks
	} `mapstructure:"dns"`
	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`
}

var AppConfig Configuration

func expandTilde(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}

func GetDefaultConfigPaths() DefaultPaths {
	var paths DefaultPaths
	userConfigDirBase, err := os.UserConfigDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not get user config dir: %v. Using current directory.\n", err)
		userConfigDirBase = "."
	}

	userConfigDir, err := expandTilde(userConfigDirBase)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not expand tilde in user config dir '%s': %v. Using potentially literal path.\n", userConfigDirBase, err)
		userConfigDir = userConfigDirBase
	}

	paths.ConfigDir = filepath.Join(userConfigDir, "miaomiaowu")
	logDir := filepath.Join(paths.ConfigDir, "logs")

	paths.LogPathApp = filepath.Join(logDir, "app.log")
	paths.LogPathRelay = filepath.Join(logDir, "relay.log")
	paths.DBPath = filepath.Join(paths.ConfigDir, "miaomiaowu.db")
	paths.StaticDir = "./static"
	paths.LogLevel = "INFO"
	return paths
}

func Init(cfgFile string, flagAppLogPath, flagRelayLogPath, flagLogLevel string) error {
	v := viper.New()

	defaults := GetDefaultConfigPaths()
	v.SetDefault("database.path", defaults.DBPath)
	v.SetDefault("server.port", "8998")
	v.SetDefault("server.log_path", defaults.LogPathApp)
	v.SetDefault("server.static_dir", defaults.StaticDir)
	v.SetDefault("relay.http_port", "8997")
	v.SetDefault("relay.socks_port", "8996")
	v.SetDefault("relay.log_path", defaults.LogPathRelay)
	v.SetDefault("relay.egress_proxy", "")
	v.SetDefault("fetch.user_agent", "clash-verge/v1.6.6")
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("fetch.max_body_mb", 16)
	v.SetDefault("fetch.egress_proxy", "")
	v.SetDefault("sync.scheduler_interval_seconds", 60)
	v.SetDefault("probe.scheduler_interval_seconds", 30)
	v.SetDefault("probe.sample_retention_days", 14)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl_minutes", 720)
	v.SetDefault("dns.resolver", "")
	v.SetDefault("logging.level", defaults.LogLevel)

	if cfgFile != "" {
		expandedCfgFile, err := expandTilde(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Could not expand tilde in config file path '%s': %v. Trying original path.\n", cfgFile, err)
			expandedCfgFile = cfgFile
		}
		v.SetConfigFile(expandedCfgFile)
		v.SetConfigType("yaml")
	} else {
		v.AddConfigPath(defaults.ConfigDir)
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("MIAOMIAOWU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	configUsedMsg := "Using default/environment configuration."
	readErr := v.ReadInConfig()
	if readErr == nil {
		configUsedMsg = fmt.Sprintf("Using config file: %s", v.ConfigFileUsed())
	} else {
		if _, ok := readErr.(viper.ConfigFileNotFoundError); ok {
			if cfgFile != "" {
				fmt.Fprintf(os.Stderr, "Warning: Config file specified by flag (%s) not found: %v\n", cfgFile, readErr)
			} else {
				fmt.Fprintln(os.Stderr, "No default config file found. Using defaults/environment variables.")
			}
		} else {
			fmt.Fprintf(os.Stderr, "Error reading config file %s: %v\n", v.ConfigFileUsed(), readErr)
		}
	}

	if err := v.Unmarshal(&AppConfig); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: Error unmarshalling configuration: %v\n", err)
		return fmt.Errorf("unable to decode config into struct: %w", err)
	}

	// Apply flag overrides
	if flagAppLogPath != "" {
		expandedPath, err := expandTilde(flagAppLogPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Could not expand tilde in --app-log path '%s': %v. Using original path.\n", flagAppLogPath, err)
			AppConfig.Server.LogPath = flagAppLogPath
		} else {
			AppConfig.Server.LogPath = expandedPath
		}
	}
	if flagRelayLogPath != "" {
		expandedPath, err := expandTilde(flagRelayLogPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Could not expand tilde in --relay-log path '%s': %v. Using original path.\n", flagRelayLogPath, err)
			AppConfig.Relay.LogPath = flagRelayLogPath
		} else {
			AppConfig.Relay.LogPath = expandedPath
		}
	}
	if flagLogLevel != "" {
		AppConfig.Logging.Level = strings.ToUpper(flagLogLevel)
	}

	// Expand tilde for paths read from config that might contain it
	var err error
	AppConfig.Database.Path, err = expandTilde(AppConfig.Database.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not expand tilde in database.path '%s': %v.\n", AppConfig.Database.Path, err)
	}
	AppConfig.Server.StaticDir, err = expandTilde(AppConfig.Server.StaticDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not expand tilde in server.static_dir '%s': %v.\n", AppConfig.Server.StaticDir, err)
	}

	// Ensure directories exist
	if err := os.MkdirAll(filepath.Dir(AppConfig.Server.LogPath), 0750); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not create final app log directory %s: %v\n", filepath.Dir(AppConfig.Server.LogPath), err)
	}
	if err := os.MkdirAll(filepath.Dir(AppConfig.Relay.LogPath), 0750); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not create final relay log directory %s: %v\n", filepath.Dir(AppConfig.Relay.LogPath), err)
	}
	if err := os.MkdirAll(defaults.ConfigDir, 0750); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not create main config directory %s: %v\n", defaults.ConfigDir, err)
	}

	// Initialize/Re-initialize loggers
	if err := logger.InitGlobalLoggers(AppConfig.Server.LogPath, AppConfig.Relay.LogPath, AppConfig.Logging.Level); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: Failed to initialize global loggers with final config: %v\n", err)
		return fmt.Errorf("failed to initialize global loggers with final config: %w", err)
	}

	logger.Info(configUsedMsg)
	if readErr != nil && cfgFile != "" {
		logger.Error("Error occurred reading specified config file '%s': %v", cfgFile, readErr)
	}
	if flagAppLogPath != "" || flagRelayLogPath != "" || flagLogLevel != "" {
		logger.Info("Log path/level flags may have overridden config file/defaults.")
	}

	if AppConfig.Auth.JWTSecret == "" {
		logger.Info("No auth.jwt_secret configured. A generated secret stored in the database will be used.")
	}
	if AppConfig.Fetch.EgressProxy != "" {
		logger.Info("Subscription downloads will be dialed through egress proxy: %s", AppConfig.Fetch.EgressProxy)
	}
	if AppConfig.Relay.EgressProxy != "" {
		logger.Info("Relay outbound connections will be dialed through egress proxy: %s", AppConfig.Relay.EgressProxy)
	}
	if AppConfig.DNS.Resolver != "" {
		logger.Info("Node checks will resolve hostnames via: %s", AppConfig.DNS.Resolver)
	}

	logger.Debug("Final AppConfig Initialized: %+v", AppConfig)
	return nil
}
