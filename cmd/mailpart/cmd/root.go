package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

var rootCmd = &cobra.Command{
	Use:   "mailpart",
	Short: "Inspect, cache and search the MIME structure of mail messages",
}

// Config is the optional YAML configuration for the tool.
type Config struct {
	CachePath string `yaml:"cache_path"`
	LogLevel  string `yaml:"log_level"`
}

var (
	configPath string
	verbose    bool
	config     = Config{
		CachePath: "mailpart-cache.db",
		LogLevel:  "info",
	}
	log = logrus.New()
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"path to a YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"print out more debug information")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			raw, err := os.ReadFile(configPath)
			if err != nil {
				return err
			}
			if err := yaml.Unmarshal(raw, &config); err != nil {
				return err
			}
		}

		level, err := logrus.ParseLevel(config.LogLevel)
		if err != nil {
			level = logrus.InfoLevel
		}
		if verbose {
			level = logrus.DebugLevel
		}
		log.SetLevel(level)
		return nil
	}
}

// Execute runs the tool.
func Execute() error {
	return rootCmd.Execute()
}
