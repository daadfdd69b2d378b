package commands

import (
	"github.com/spf13/cobra"

	appconfig "github.com/saker-ai/phoneai-client/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := appconfig.Load(configPath)
		if err != nil {
			return err
		}
		if endpoint != "" {
			cfg.EndpointURL = endpoint
			if err := cfg.Validate(); err != nil {
				return err
			}
		}
		data, err := cfg.YAML()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}
