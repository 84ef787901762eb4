package render

import (
	"context"
	"fmt"
	"os"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"pulsepress/internal/logging"
)

// Shot opens a file:// or http:// target in headless Chrome and writes a
// full-page PNG. Each call launches its own browser; renders are one-shot
// CLI operations, not a long-lived session.
func (r *Renderer) Shot(ctx context.Context, target, outPath string) error {
	bc := r.cfg.Render.Browser

	launch := launcher.New().Headless(bc.Headless)
	if bc.BinPath != "" {
		launch = launch.Bin(bc.BinPath)
	}
	controlURL, err := launch.Launch()
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to browser: %w", err)
	}
	defer browser.Close()

	page, err := browser.Page(proto.TargetCreateTarget{URL: target})
	if err != nil {
		return fmt.Errorf("open %s: %w", target, err)
	}

	width := bc.ViewportWidth
	if width <= 0 {
		width = 1280
	}
	height := bc.ViewportHeight
	if height <= 0 {
		height = 800
	}
	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		logging.RenderDebug("Viewport override failed: %v", err)
	}

	if err := page.Timeout(r.cfg.GetRenderTimeout()).WaitLoad(); err != nil {
		return fmt.Errorf("load %s: %w", target, err)
	}

	shot, err := page.Context(ctx).Screenshot(true, nil)
	if err != nil {
		return fmt.Errorf("screenshot %s: %w", target, err)
	}
	if err := os.WriteFile(outPath, shot, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}
	logging.Render("Screenshot %s -> %s (%d bytes)", target, outPath, len(shot))
	return nil
}
