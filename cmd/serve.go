package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/stashcast/stashcast"
	"github.com/stashcast/stashcast/internal/config"
)

func init() {
	command := &cobra.Command{
		Use:   "serve",
		Short: "serve the stashcast API and streaming server",
		Long:  `serve the stashcast API and streaming server`,
		Run:   stashcast.Service.ServeCommand,
	}

	configs := []config.Config{
		stashcast.Service.ServerConfig,
		stashcast.Service.StoreConfig,
		stashcast.Service.PlannerConfig,
		stashcast.Service.DistributorConfig,
		stashcast.Service.CacheConfig,
		stashcast.Service.AccountsConfig,
	}

	cobra.OnInitialize(func() {
		for _, cfg := range configs {
			cfg.Set()
		}
		stashcast.Service.Preflight()
	})

	for _, cfg := range configs {
		if err := cfg.Init(command); err != nil {
			log.Panic().Err(err).Msg("unable to register serve command flags")
		}
	}

	rootCmd.AddCommand(command)
}
