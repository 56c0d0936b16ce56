package cli

import (
	"time"

	"github.com/spf13/cobra"

	app "github.com/turtacn/SafeScan/internal/application/analysis"
	"github.com/turtacn/SafeScan/internal/bootstrap"
	domain "github.com/turtacn/SafeScan/internal/domain/analysis"
	"github.com/turtacn/SafeScan/pkg/client"
	"github.com/turtacn/SafeScan/pkg/errors"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Inspect the validation audit log",
		Long: "Inspect records of AI classifications the knowledge base did not confirm.\n" +
			"Runs against --server when given, otherwise against the configured stores.",
	}
	cmd.AddCommand(newAdminLogsCmd(), newAdminStatsCmd(), newAdminFlaggedCmd())
	return cmd
}

// withAdmin runs fn against a local AdminService built from the config.
func withAdmin(cmd *cobra.Command, cliCtx *CLIContext, fn func(app.AdminService) error) error {
	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()
	a, err := bootstrap.New(ctx, cliCtx.Config, cliCtx.Logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a.Admin)
}

func newAdminLogsCmd() *cobra.Command {
	var (
		start, end string
		productURL string
		logType    string
		limit      int
		offset     int
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "List validation records",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			filter := client.ValidationLogFilter{ProductURL: productURL, LogType: logType, Limit: limit, Offset: offset}
			if filter.Start, err = parseDate(start); err != nil {
				return err
			}
			if filter.End, err = parseDate(end); err != nil {
				return err
			}

			var page *app.ValidationLogPage
			if cliCtx.Remote() {
				c, err := cliCtx.Client()
				if err != nil {
					return err
				}
				ctx, cancel := commandContext(cmd, cliCtx)
				defer cancel()
				if page, err = c.ValidationLogs(ctx, filter); err != nil {
					return err
				}
			} else {
				err = withAdmin(cmd, cliCtx, func(admin app.AdminService) error {
					var err error
					page, err = admin.ValidationLogs(cmd.Context(), domain.ValidationLogQuery{
						Start:      filter.Start,
						End:        filter.End,
						ProductURL: filter.ProductURL,
						LogType:    filter.LogType,
						Limit:      filter.Limit,
						Offset:     filter.Offset,
					})
					return err
				})
				if err != nil {
					return err
				}
			}
			return PrintResult(cmd, validationLogView{page: page})
		},
	}
	f := cmd.Flags()
	f.StringVar(&start, "start", "", "earliest record (YYYY-MM-DD or RFC3339)")
	f.StringVar(&end, "end", "", "latest record (YYYY-MM-DD or RFC3339)")
	f.StringVar(&productURL, "product-url", "", "only records for this product URL")
	f.StringVar(&logType, "type", "", "record type, e.g. invalid_allergen")
	f.IntVar(&limit, "limit", app.DefaultLogLimit, "page size")
	f.IntVar(&offset, "offset", 0, "page offset")
	return cmd
}

func newAdminStatsCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show classification accuracy over recent days",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			var stats *domain.ValidationStats
			if cliCtx.Remote() {
				c, err := cliCtx.Client()
				if err != nil {
					return err
				}
				ctx, cancel := commandContext(cmd, cliCtx)
				defer cancel()
				if stats, err = c.ValidationStats(ctx, days); err != nil {
					return err
				}
			} else {
				err = withAdmin(cmd, cliCtx, func(admin app.AdminService) error {
					var err error
					stats, err = admin.ValidationStats(cmd.Context(), days)
					return err
				})
				if err != nil {
					return err
				}
			}
			return PrintResult(cmd, statsView{ValidationStats: stats})
		},
	}
	cmd.Flags().IntVar(&days, "days", app.DefaultStatsDays, "window in days")
	return cmd
}

func newAdminFlaggedCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "flagged",
		Short: "List the substances rejected most often",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			var flagged []domain.FlaggedSubstance
			if cliCtx.Remote() {
				c, err := cliCtx.Client()
				if err != nil {
					return err
				}
				ctx, cancel := commandContext(cmd, cliCtx)
				defer cancel()
				if flagged, err = c.FlaggedSubstances(ctx, limit); err != nil {
					return err
				}
			} else {
				err = withAdmin(cmd, cliCtx, func(admin app.AdminService) error {
					var err error
					flagged, err = admin.FlaggedSubstances(cmd.Context(), limit)
					return err
				})
				if err != nil {
					return err
				}
			}
			return PrintResult(cmd, flaggedView(flagged))
		},
	}
	cmd.Flags().IntVar(&limit, "limit", app.DefaultFlaggedLimit, "number of substances")
	return cmd
}

// parseDate accepts a date or an RFC3339 timestamp. Empty means no bound.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, errors.InvalidParam("invalid date " + s + ", want YYYY-MM-DD or RFC3339")
	}
	return t, nil
}
