package provision

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// VerifyConfig controls engine verification.
type VerifyConfig struct {
	// Timeout bounds the whole launch-and-navigate check.
	Timeout time.Duration
}

// Verify launches the installed engine headless and confirms it can
// reach a blank target. A missing shared library fails the engine at
// first launch, not at install time; running this at provision time
// moves that latent failure forward to where the build can still abort.
func Verify(ctx context.Context, cfg VerifyConfig, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, cfg.Timeout)
	defer cancel()

	var version string
	actions := []chromedp.Action{
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, product, _, _, _, err := browser.GetVersion().Do(ctx)
			if err != nil {
				return fmt.Errorf("query engine version: %w", err)
			}
			version = product
			return nil
		}),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return fmt.Errorf("launch browser engine: %w", err)
	}

	logger.Info("browser engine verified", zap.String("engine", version))
	return nil
}
