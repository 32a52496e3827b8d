package main

import (
	"github.com/spf13/cobra"

	"github.com/hupe1980/dialogmesh/config"
)

// version is set at build time via -ldflags.
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "dialogmesh",
	Short: "dialogmesh - multi-agent conversational content planning",
	Long: `dialogmesh guides a teacher from a vague request to finished classroom
content by gathering requirements over several turns and coordinating
specialist agents.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.AddCommand(chatCmd, planCmd, versionCmd)
}

func loadConfig() (config.Config, error) {
	return config.Load(configPath)
}
