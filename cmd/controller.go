package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/pagebridge/internal/controller"
	"github.com/xkilldash9x/pagebridge/internal/observability"
)

// newControllerCmd creates the `controller` command.
func newControllerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "controller",
		Short: "Run the reference controller that pages connect to",
		Long: `Serves bridge connections over websocket and answers dialog, navigation
and opener requests. Visibility and navigation can be driven through the
admin API under /api/v1/windows.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			ctrl := controller.New(cfg.Controller(), nil, logger)
			srv := controller.NewServer(ctrl, cfg.Controller(), logger)

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				return srv.ListenAndServe(ctx)
			})
			if interval := cfg.Controller().StatusInterval; interval > 0 {
				g.Go(func() error {
					reportStatus(ctx, ctrl, interval, logger)
					return nil
				})
			}
			return g.Wait()
		},
	}

	cmd.Flags().String("address", "", "listen address (overrides controller.address)")
	cmd.Flags().Int("confirm-response", 0, "button index answered to every confirm() (overrides controller.dialog.confirm_response)")
	return cmd
}

// reportStatus logs a line per open window every interval until ctx ends.
func reportStatus(ctx context.Context, ctrl *controller.Controller, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			windows := ctrl.Windows()
			logger.Info("Controller status", zap.Int("windows", len(windows)))
			for _, w := range windows {
				if w.Closed {
					continue
				}
				logger.Info("Window",
					zap.Int64("window_id", w.ID),
					zap.String("location", w.Location),
					zap.String("visibility", string(w.Visibility)),
					zap.Int("inbox", len(w.Inbox)))
			}
		}
	}
}
