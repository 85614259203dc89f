package browser

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nbenliogludev/go-browser-use/internal/config"
)

// ErrNoSuchTab is returned for a page id that is not open.
var ErrNoSuchTab = errors.New("no such tab")

// Driver is the browser session the controller acts on. Elements are
// addressed by the index assigned in the last State call.
type Driver interface {
	State(ctx context.Context, withScreenshot bool) (*State, error)
	Navigate(ctx context.Context, url string) error
	GoBack(ctx context.Context) error
	Click(ctx context.Context, index int) error
	InputText(ctx context.Context, index int, text string) error
	// Scroll moves the page by amount pixels; amount 0 means one viewport.
	Scroll(ctx context.Context, down bool, amount int) error
	SendKeys(ctx context.Context, keys string) error
	Tabs(ctx context.Context) ([]TabInfo, error)
	SwitchTab(ctx context.Context, pageID int) error
	OpenTab(ctx context.Context, url string) error
	HTML(ctx context.Context) (string, error)
	Close()
}

// NewDriver starts the browser selected by cfg.Driver.
func NewDriver(cfg config.BrowserConfig, logger *zap.Logger) (Driver, error) {
	switch cfg.Driver {
	case config.DriverChromedp, "":
		return NewChromeManager(cfg, logger)
	case config.DriverPlaywright:
		return NewPlaywrightManager(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown browser driver %q", cfg.Driver)
	}
}

func elementSelector(index int) string {
	return fmt.Sprintf("[data-ai-id='%d']", index)
}

func missingElementError(index int) error {
	return fmt.Errorf("element with index %d does not exist - retry or use alternative actions", index)
}
