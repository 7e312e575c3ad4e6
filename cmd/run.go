package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagebridge/internal/channel"
	"github.com/xkilldash9x/pagebridge/internal/channel/wschannel"
	"github.com/xkilldash9x/pagebridge/internal/config"
	"github.com/xkilldash9x/pagebridge/internal/controller"
	"github.com/xkilldash9x/pagebridge/internal/observability"
	"github.com/xkilldash9x/pagebridge/internal/page"
	"github.com/xkilldash9x/pagebridge/internal/shim"
)

// newRunCmd creates the `run` command.
func newRunCmd() *cobra.Command {
	var loopback bool

	cmd := &cobra.Command{
		Use:   "run SCRIPT [-- PAGE_ARGS...]",
		Short: "Run a script in a page context bridged to a controller",
		Long: `Creates a page context, installs the bridge and evaluates SCRIPT in it.
Arguments after "--" are the page's launch arguments, as a controller
would pass them: --hidden-page and --opener-id N.

With --loopback the page talks to an in-process controller instead of
dialing bridge.controller_url.`,
		Example: `  pagebridge run page.js
  pagebridge run --loopback page.js -- --hidden-page --opener-id 1`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			launch, err := shim.LaunchConfigFromArgs(args[1:])
			if err != nil {
				return err
			}
			src, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read script: %w", err)
			}

			result, err := runPage(cmd.Context(), cfg, launch, loopback, args[0], string(src))
			if err != nil {
				return err
			}
			out, err := json.Marshal(result)
			if err != nil {
				return fmt.Errorf("failed to encode script result: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.Flags().BoolVar(&loopback, "loopback", false, "use an in-process controller")
	cmd.Flags().String("controller", "", "controller websocket URL (overrides bridge.controller_url)")
	cmd.Flags().Duration("timeout", 0, "round-trip timeout (overrides bridge.round_trip_timeout)")
	cmd.Flags().Duration("linger", 0, "keep the page alive after the script returns (overrides bridge.linger)")
	return cmd
}

// bridgeChannel is a Channel the run command owns and must close.
type bridgeChannel interface {
	channel.Channel
	Close() error
}

// runPage connects a fresh page context to a controller, runs the script
// and lingers if configured.
func runPage(ctx context.Context, cfg config.Interface, launch shim.LaunchConfig, loopback bool, name, src string) (any, error) {
	logger := observability.GetLogger()

	ch, transportDone, err := connect(ctx, cfg, launch, loopback, logger)
	if err != nil {
		return nil, err
	}
	defer ch.Close()

	pc, err := page.New(logger)
	if err != nil {
		return nil, err
	}
	defer pc.Close()

	b, err := shim.Install(ctx, pc, ch, launch, shim.Options{
		RoundTripTimeout: cfg.Bridge().RoundTripTimeout,
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}
	defer b.Close()

	result, err := pc.RunScript(ctx, name, src)
	if err != nil {
		return nil, err
	}

	if linger := cfg.Bridge().Linger; linger > 0 {
		logger.Info("Script finished, lingering", zap.Duration("linger", linger))
		timer := time.NewTimer(linger)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		case <-transportDone:
			logger.Warn("Controller went away while lingering")
		}
	}
	return result, nil
}

// connect opens the page's channel: a websocket to the configured
// controller, or a loopback to an in-process one.
func connect(ctx context.Context, cfg config.Interface, launch shim.LaunchConfig, loopback bool, logger *zap.Logger) (bridgeChannel, <-chan struct{}, error) {
	if loopback {
		ctrl := controller.New(cfg.Controller(), nil, logger)
		lb := channel.NewLoopback(logger, 0)
		session := ctrl.Open(lb, launch.HiddenPage)
		lb.Bind(session)
		logger.Info("Using in-process controller", zap.Int64("window_id", session.WindowID()))
		return lb, nil, nil
	}

	target, err := controllerURL(cfg.Bridge().ControllerURL, launch)
	if err != nil {
		return nil, nil, err
	}
	client, err := wschannel.Dial(ctx, target, logger, wschannel.Options{
		DialTimeout:  cfg.Bridge().DialTimeout,
		WriteTimeout: cfg.Bridge().WriteTimeout,
	})
	if err != nil {
		return nil, nil, err
	}
	return client, client.Done(), nil
}

// controllerURL tells the controller about the hidden launch flag so both
// sides start from the same visibility.
func controllerURL(raw string, launch shim.LaunchConfig) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid controller url %q: %w", raw, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", errors.New("controller url must use ws or wss")
	}
	if launch.HiddenPage {
		q := u.Query()
		q.Set(controller.HiddenQueryParam, "1")
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
