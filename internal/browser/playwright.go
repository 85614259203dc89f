package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/nbenliogludev/go-browser-use/internal/config"
)

// PlaywrightManager runs a persistent Chromium context through playwright-go.
type PlaywrightManager struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	pw      *playwright.Playwright
	Context playwright.BrowserContext

	mu   sync.Mutex
	Page playwright.Page
}

func NewPlaywrightManager(cfg config.BrowserConfig, logger *zap.Logger) (*PlaywrightManager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := playwright.Install(); err != nil {
		return nil, fmt.Errorf("install pw failed: %w", err)
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start pw failed: %w", err)
	}

	userDataDir := cfg.UserDataDir
	if userDataDir == "" {
		wd, _ := os.Getwd()
		userDataDir = filepath.Join(wd, ".playwright_data")
	}

	opts := playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless: playwright.Bool(cfg.Headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
		},
	}
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		opts.Viewport = &playwright.Size{Width: cfg.WindowWidth, Height: cfg.WindowHeight}
	}
	if cfg.ChromePath != "" {
		opts.ExecutablePath = playwright.String(cfg.ChromePath)
	}

	bctx, err := pw.Chromium.LaunchPersistentContext(userDataDir, opts)
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch persistent context: %w", err)
	}

	var page playwright.Page
	if pages := bctx.Pages(); len(pages) > 0 {
		page = pages[0]
	} else {
		page, err = bctx.NewPage()
		if err != nil {
			_ = bctx.Close()
			_ = pw.Stop()
			return nil, fmt.Errorf("failed to create page: %w", err)
		}
	}

	bctx.SetDefaultTimeout(float64(cfg.ActionTimeout.Milliseconds()))
	bctx.SetDefaultNavigationTimeout(float64(cfg.NavigationTimeout.Milliseconds()))

	logger = logger.Named("browser.playwright")
	logger.Info("Playwright context started", zap.String("user_data_dir", userDataDir), zap.Bool("headless", cfg.Headless))

	return &PlaywrightManager{
		cfg:     cfg,
		logger:  logger,
		pw:      pw,
		Context: bctx,
		Page:    page,
	}, nil
}

func (m *PlaywrightManager) page() playwright.Page {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Page
}

func (m *PlaywrightManager) State(ctx context.Context, withScreenshot bool) (*State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page := m.page()

	_ = page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{State: playwright.LoadStateDomcontentloaded})

	result, err := page.Evaluate(indexScript)
	if err != nil {
		return nil, fmt.Errorf("js evaluation failed: %w", err)
	}
	raw, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("expected string from js, got %T", result)
	}
	elements, err := decodeElements(raw)
	if err != nil {
		return nil, err
	}

	title, _ := page.Title()
	tabs, _ := m.Tabs(ctx)

	out := &State{
		URL:      page.URL(),
		Title:    title,
		Tabs:     tabs,
		Elements: elements,
	}

	if withScreenshot {
		buf, errShot := page.Screenshot(playwright.PageScreenshotOptions{
			FullPage: playwright.Bool(false),
			Type:     playwright.ScreenshotTypePng,
		})
		if errShot != nil {
			m.logger.Warn("Failed to take screenshot", zap.Error(errShot))
		} else {
			out.Screenshot = base64.StdEncoding.EncodeToString(buf)
		}
	}
	return out, nil
}

func (m *PlaywrightManager) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := m.page().Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	return err
}

func (m *PlaywrightManager) GoBack(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := m.page().GoBack()
	return err
}

func (m *PlaywrightManager) locate(index int) (playwright.Locator, error) {
	loc := m.page().Locator(elementSelector(index))
	n, err := loc.Count()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, missingElementError(index)
	}
	return loc.First(), nil
}

func (m *PlaywrightManager) Click(ctx context.Context, index int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	loc, err := m.locate(index)
	if err != nil {
		return err
	}
	if err := loc.ScrollIntoViewIfNeeded(); err != nil {
		return fmt.Errorf("scroll failed: %w", err)
	}
	return loc.Click()
}

func (m *PlaywrightManager) InputText(ctx context.Context, index int, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	loc, err := m.locate(index)
	if err != nil {
		return err
	}
	return loc.Fill(text)
}

func (m *PlaywrightManager) Scroll(ctx context.Context, down bool, amount int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := m.page().Evaluate(scrollScript(down, amount))
	return err
}

func (m *PlaywrightManager) SendKeys(ctx context.Context, keys string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.page().Keyboard().Press(keys)
}

func (m *PlaywrightManager) Tabs(ctx context.Context) ([]TabInfo, error) {
	pages := m.Context.Pages()
	tabs := make([]TabInfo, 0, len(pages))
	for i, p := range pages {
		title, _ := p.Title()
		tabs = append(tabs, TabInfo{PageID: i, URL: p.URL(), Title: title})
	}
	return tabs, nil
}

func (m *PlaywrightManager) SwitchTab(ctx context.Context, pageID int) error {
	pages := m.Context.Pages()
	if pageID < 0 || pageID >= len(pages) {
		return fmt.Errorf("%w: page_id %d", ErrNoSuchTab, pageID)
	}
	page := pages[pageID]
	if err := page.BringToFront(); err != nil {
		return err
	}
	m.mu.Lock()
	m.Page = page
	m.mu.Unlock()
	return nil
}

func (m *PlaywrightManager) OpenTab(ctx context.Context, url string) error {
	page, err := m.Context.NewPage()
	if err != nil {
		return fmt.Errorf("open tab: %w", err)
	}
	m.mu.Lock()
	m.Page = page
	m.mu.Unlock()
	return m.Navigate(ctx, url)
}

func (m *PlaywrightManager) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return m.page().Content()
}

func (m *PlaywrightManager) Close() {
	if m.Context != nil {
		_ = m.Context.Close()
	}
	if m.pw != nil {
		_ = m.pw.Stop()
	}
}
