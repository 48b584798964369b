package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/scriptsmith/scriptgraph/scriptgraph/config"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

func init() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if _, err := config.LoadConfig(configPath); err != nil {
			log.Fatal().Err(err).Msg("failed to load configuration")
		}
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (defaults to the usual search path)")

	reviseCmd.Flags().StringVar(&reviseText, "text", "", "replacement text of the turn (required)")
	reviseCmd.Flags().StringVar(&reviseMessage, "message", "", "optional commit message")
	reviseCmd.Flags().StringVar(&reviseAuthor, "author", "", "editing author identifier")
	_ = reviseCmd.MarkFlagRequired("text")

	exportCmd.AddCommand(exportPersonaCmd, exportDayCmd, exportModuleCmd)
	rootCmd.AddCommand(importCmd, exportCmd, watchCmd, reviseCmd)
}
