package config

import (
	"fmt"
	"os"

	"github.com/ILikePlayingGames/Hindenburg/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	configFile string // --config flag value

	Cmd = &cobra.Command{
		Use:   "config",
		Short: "Generate a default configuration file",
		Args:  cobra.NoArgs,
		RunE:  runGenerate,
	}
)

func init() {
	Cmd.Flags().StringVarP(&configFile, "config", "c", "config.yaml", "output config file path")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	logger := log.With().Str("com", "generate").Logger()

	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("file already exists: %s", configFile)
	}

	var cfg config.Config
	cfg.ApplyDefaults()
	content, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("render default config: %w", err)
	}

	if err := os.WriteFile(configFile, content, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	logger.Info().Str("file", configFile).Msg("generated configuration")
	return nil
}
