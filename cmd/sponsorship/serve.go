package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/shelter-labs/sponsorship-storage/internal"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API, webhook, consumer and system workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		app, err := internal.NewApplication(cfg)
		if err != nil {
			return err
		}

		log.Info().Str("version", Version).Msg("starting sponsorship storage")
		app.Run()

		return nil
	},
}
