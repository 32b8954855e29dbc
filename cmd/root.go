package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// defCfgPath is searched for a config.yaml before the current directory.
const defCfgPath = "/etc/stashcast/"

// envPrefix is the environment variable prefix bound to every flag, e.g.
// STASHCAST_BIND overrides the --bind flag.
const envPrefix = "STASHCAST"

var rootCmd = &cobra.Command{
	Use:     "stashcast",
	Short:   "Unlimited HLS video storage on top of a chat platform.",
	Long:    `stashcast ingests source video into HLS segments distributed across chat-platform accounts and serves it back over HTTP.`,
	Version: "1.0.0",
}

var onConfigLoad []func()

func init() {
	var cfgFile string
	var logCfg logConfig

	cobra.OnInitialize(func() {
		initConfiguration(cfgFile, defCfgPath, envPrefix)
		logCfg.Set()
		initLogging(logCfg)

		if file := viper.ConfigFileUsed(); file != "" {
			viper.OnConfigChange(func(e fsnotify.Event) {
				log.Info().Msg("config file reloaded")
				for _, loadConfig := range onConfigLoad {
					loadConfig()
				}
			})
			viper.WatchConfig()
			log.Info().Str("config", file).Msg("preflight complete with config file")
		} else {
			log.Warn().Msg("preflight complete without config file")
		}

		for _, loadConfig := range onConfigLoad {
			loadConfig()
		}
	})

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "configuration file path")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	_ = logCfg.Init(rootCmd)
}

// Execute runs the root command; it is the sole entry point called from
// cmd/stashcast/main.go.
func Execute() error {
	return rootCmd.Execute()
}

func initConfiguration(cfgFile, defCfgPath, envPrefix string) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		if runtime.GOOS == "linux" && defCfgPath != "" {
			viper.AddConfigPath(defCfgPath)
		}
		viper.AddConfigPath(".")
	}

	if envPrefix != "" {
		viper.SetEnvPrefix(envPrefix)
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
		viper.AutomaticEnv()
	}

	if err := viper.ReadInConfig(); err != nil && cfgFile != "" {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
}

// logConfig mirrors the teacher's console+rotating-file zerolog setup,
// rotated on SIGHUP so an external logrotate can signal without
// restarting the process.
type logConfig struct {
	Level      string `yaml:"level"`
	Console    bool   `yaml:"console"`
	File       string `yaml:"file"`
	MaxAge     int    `yaml:"maxage"`
	MaxSize    int    `yaml:"maxsize"`
	MaxBackups int    `yaml:"maxbackups"`
}

func (logConfig) Init(cmd *cobra.Command) error {
	cmd.PersistentFlags().String("log.level", "", "set log level")
	if err := viper.BindPFlag("log.level", cmd.PersistentFlags().Lookup("log.level")); err != nil {
		return err
	}
	cmd.PersistentFlags().Bool("log.console", true, "enable console logging")
	if err := viper.BindPFlag("log.console", cmd.PersistentFlags().Lookup("log.console")); err != nil {
		return err
	}
	cmd.PersistentFlags().String("log.file", "", "enable file logging and specify its path")
	if err := viper.BindPFlag("log.file", cmd.PersistentFlags().Lookup("log.file")); err != nil {
		return err
	}
	cmd.PersistentFlags().Int("log.maxage", 0, "max age in days to keep a rotated logfile")
	if err := viper.BindPFlag("log.maxage", cmd.PersistentFlags().Lookup("log.maxage")); err != nil {
		return err
	}
	cmd.PersistentFlags().Int("log.maxsize", 100, "max size in MB of the logfile before it's rolled")
	if err := viper.BindPFlag("log.maxsize", cmd.PersistentFlags().Lookup("log.maxsize")); err != nil {
		return err
	}
	cmd.PersistentFlags().Int("log.maxbackups", 0, "max number of rolled files to keep")
	return viper.BindPFlag("log.maxbackups", cmd.PersistentFlags().Lookup("log.maxbackups"))
}

func (c *logConfig) Set() {
	c.Level = viper.GetString("log.level")
	c.Console = viper.GetBool("log.console")
	c.File = viper.GetString("log.file")
	c.MaxAge = viper.GetInt("log.maxage")
	c.MaxSize = viper.GetInt("log.maxsize")
	c.MaxBackups = viper.GetInt("log.maxbackups")
}

func initLogging(cfg logConfig) {
	var writers []io.Writer

	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr})
	}

	if cfg.File != "" {
		logger := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxAge:     cfg.MaxAge,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
		}

		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGHUP)
		go func() {
			for range c {
				logger.Rotate()
			}
		}()

		writers = append(writers, logger)
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(io.MultiWriter(writers...))

	if cfg.Level == "" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		log.Info().Msg("using default log level")
	} else if level, err := zerolog.ParseLevel(cfg.Level); err != nil {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		log.Warn().Str("log-level", cfg.Level).Msg("unknown log level")
	} else {
		zerolog.SetGlobalLevel(level)
	}

	log.Info().
		Bool("console", cfg.Console).
		Str("file", cfg.File).
		Int("maxage", cfg.MaxAge).
		Int("maxsize", cfg.MaxSize).
		Int("maxbackups", cfg.MaxBackups).
		Msg("logging configured")
}
