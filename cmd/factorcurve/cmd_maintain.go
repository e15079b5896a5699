package main

import (
	"github.com/spf13/cobra"

	"github.com/jgbdesk/factorcurve/internal/app"
	"github.com/jgbdesk/factorcurve/internal/config"
)

// maintain runs one maintenance pass immediately. Deployments that drive
// maintenance from an external scheduler call this right after the data
// refresh job instead of enabling the built-in cron.
func newMaintainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "maintain",
		Short: "Run one cache maintenance pass (flush observations, invalidate models)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg.Scheduler.Enabled = true

			application, err := app.New(cfg)
			if err != nil {
				return err
			}
			defer application.Close()

			application.Scheduler.RunOnce()
			return nil
		},
	}
}
