// Package cmd provides the command-line interface of livepreview.
//
// Configuration System:
//
//	Settings are resolved from several sources, highest priority first:
//	1. Command-line flags (--config, --log-level, --format, ...)
//	2. Individual environment variables (LIVEPREVIEW_SERVER_URL, ...)
//	3. The configuration file: --config, else LIVEPREVIEW_CONFIG_FILE,
//	   else .livepreview.yml in the current directory
//	4. Built-in defaults
//
// Environment Variables:
//
//	LIVEPREVIEW_CONFIG_FILE: Path to a configuration file
//	LIVEPREVIEW_SERVER_URL: Preview server address
//	LIVEPREVIEW_LOG_LEVEL: debug, info, warn or error
//	And every other key following the LIVEPREVIEW_<SECTION>_<OPTION> pattern
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/livepreview/internal/config"
	"github.com/conneroisu/livepreview/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "livepreview",
	Short: "Follow a live document preview from the terminal",
	Long: `livepreview connects to a live-preview server, shows the rendered document
and keeps it up to date as the source is edited.

Quick Start:
  livepreview follow http://localhost:8080/notes/intro.md
  livepreview fetch  http://localhost:8080/notes/intro.md
  livepreview config show

With server.url set in .livepreview.yml, documents can be given by path:
  livepreview follow /notes/intro.md`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .livepreview.yml, can also use LIVEPREVIEW_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	bindFlags(rootCmd.PersistentFlags(), map[string]string{
		"log-level":  "log.level",
		"log-format": "log.format",
	})
}

// bindFlags binds each named flag of fs to a configuration key so that an
// explicitly set flag overrides the file and the environment.
func bindFlags(fs *pflag.FlagSet, keys map[string]string) {
	for name, key := range keys {
		if f := fs.Lookup(name); f != nil {
			_ = viper.BindPFlag(key, f)
		}
	}
}

// initConfig selects the configuration file and enables environment
// overrides with the LIVEPREVIEW_ prefix. A missing file is not an error.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("LIVEPREVIEW_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".livepreview")
	}

	viper.SetEnvPrefix("LIVEPREVIEW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the process logger from the loaded configuration.
func newLogger(cfg *config.Config) *logging.PreviewLogger {
	level, _ := logging.ParseLevel(cfg.Log.Level)
	return logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    cfg.Log.Format,
		Output:    os.Stderr,
		Component: "livepreview",
	})
}

// watchConfig re-applies the log level whenever the configuration file
// changes. It does nothing when no file was read.
func watchConfig(ctx context.Context, logger *logging.PreviewLogger) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(configChangeHandler(ctx, logger, viper.GetViper()))
	viper.WatchConfig()
}

func configChangeHandler(ctx context.Context, logger *logging.PreviewLogger, v *viper.Viper) func(fsnotify.Event) {
	return func(e fsnotify.Event) {
		level, err := logging.ParseLevel(v.GetString("log.level"))
		if err != nil {
			logger.Warn(ctx, err, "Ignoring log level from changed configuration", "file", e.Name)
			return
		}
		logger.SetLevel(level)
		logger.Info(ctx, "Configuration changed", "file", e.Name, "op", e.Op.String(), "log_level", level.String())
	}
}
