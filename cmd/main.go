package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	cfgPkg "github.com/xhad/mrag/pkg/config"
	"github.com/xhad/mrag/pkg/logger"
)

var (
	configPath string
	logLevel   string
	cfg        *cfgPkg.Config
)

var rootCmd = &cobra.Command{
	Use:           "mrag",
	Short:         "Multimodal question answering over PDF documents",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := cfgPkg.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			c.Log.Level = logLevel
		}
		if errs := c.Validate(); len(errs) > 0 {
			for _, e := range errs {
				color.Red("config: %s", e.Error())
			}
			return fmt.Errorf("invalid configuration (%d errors)", len(errs))
		}

		level, _ := logger.ParseLevel(c.Log.Level)
		logger.SetLevel(level)
		logger.SetColor(c.Log.Color)
		cfg = c
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.AddCommand(serveCmd, ingestCmd, askCmd, evalCmd, docsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}
