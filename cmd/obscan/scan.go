package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/obscan/internal/application"
	"github.com/sawpanic/obscan/internal/config"
	"github.com/sawpanic/obscan/internal/metrics"
	"github.com/sawpanic/obscan/internal/report"
)

func newScanCmd() *cobra.Command {
	var (
		out         string
		metricsFile string
		dryRun      bool
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one scan and deliver the report",
		Long: `Run one stateless scan. Alerts go to Telegram when TELEGRAM_BOT_TOKEN is set,
otherwise to the log, and are recorded in Postgres when DATABASE_URL is set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			m := metrics.NewRegistry()
			runner, cleanup, err := application.Wire(cmd.Context(), cfg, m, application.WireOptions{DryRun: dryRun})
			if err != nil {
				return err
			}
			defer cleanup()

			res, runErr := runner.Run(cmd.Context())
			if res != nil {
				alerts := 0
				if res.Report != nil {
					alerts = len(res.Report.Alerts)
				}
				log.Info().
					Int("candidates", res.Stats.Candidates).
					Int("fetched", res.Stats.Fetched).
					Int("errored", res.Stats.Errored).
					Int("alerts", alerts).
					Dur("dur", res.Duration).
					Msg("Scan complete")

				if out != "" {
					if err := report.WriteJSON(out, res); err != nil {
						log.Error().Err(err).Str("path", out).Msg("report file write failed")
					}
				}
			}
			if metricsFile != "" {
				if err := m.WriteTextfile(metricsFile); err != nil {
					log.Error().Err(err).Str("path", metricsFile).Msg("metrics textfile write failed")
				}
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "write the scan result as JSON to this path")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics in text format to this path")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "deliver to the log only")
	config.BindFlags(cmd.Flags())
	return cmd
}
