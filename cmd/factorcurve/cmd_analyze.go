package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jgbdesk/factorcurve/internal/app"
	"github.com/jgbdesk/factorcurve/internal/config"
)

func newAnalyzeCmd() *cobra.Command {
	var (
		days       int
		components int
		endDateArg string
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run one factor analysis and print the result as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			endDate := time.Now()
			if endDateArg != "" {
				endDate, err = time.Parse("2006-01-02", endDateArg)
				if err != nil {
					return fmt.Errorf("invalid --end-date: %w", err)
				}
			}

			application, err := app.New(cfg)
			if err != nil {
				return err
			}
			defer application.Close()

			resp, err := application.Analyzer.Analyze(context.Background(), endDate, days, components)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}

	cmd.Flags().IntVar(&days, "days", 100, "business days in the model window")
	cmd.Flags().IntVar(&components, "components", 3, "number of principal components")
	cmd.Flags().StringVar(&endDateArg, "end-date", "", "window end date (YYYY-MM-DD, default today)")
	return cmd
}
