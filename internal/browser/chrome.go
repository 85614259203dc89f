package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/nbenliogludev/go-browser-use/internal/config"
)

// ChromeManager drives a local Chrome over CDP.
type ChromeManager struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu      sync.Mutex
	tabs    map[target.ID]context.Context
	cancels []context.CancelFunc
	order   []target.ID
	current target.ID
}

func NewChromeManager(cfg config.BrowserConfig, logger *zap.Logger) (*ChromeManager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-gpu", cfg.Headless),
	)
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight))
	}
	if cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ChromePath))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// first Run launches the browser and attaches to its initial tab
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome failed: %w", err)
	}

	m := &ChromeManager{
		cfg:           cfg,
		logger:        logger.Named("browser.chrome"),
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		tabs:          make(map[target.ID]context.Context),
	}

	first := chromedp.FromContext(browserCtx).Target.TargetID
	m.tabs[first] = browserCtx
	m.order = append(m.order, first)
	m.current = first

	m.logger.Info("Chrome started", zap.Bool("headless", cfg.Headless))
	return m, nil
}

func (m *ChromeManager) currentTab() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tabs[m.current]
}

// run executes actions on the current tab, bounded by timeout and by the caller's ctx.
func (m *ChromeManager) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(m.currentTab(), timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (m *ChromeManager) State(ctx context.Context, withScreenshot bool) (*State, error) {
	var (
		raw   string
		url   string
		title string
		shot  []byte
	)

	actions := []chromedp.Action{
		chromedp.Evaluate(indexScript, &raw),
		chromedp.Location(&url),
		chromedp.Title(&title),
	}
	if withScreenshot {
		actions = append(actions, chromedp.CaptureScreenshot(&shot))
	}

	if err := m.run(ctx, m.cfg.ActionTimeout, actions...); err != nil {
		return nil, fmt.Errorf("snapshot failed: %w", err)
	}

	elements, err := decodeElements(raw)
	if err != nil {
		return nil, err
	}

	tabs, err := m.Tabs(ctx)
	if err != nil {
		m.logger.Warn("Failed to list tabs", zap.Error(err))
	}

	state := &State{
		URL:      url,
		Title:    title,
		Tabs:     tabs,
		Elements: elements,
	}
	if len(shot) > 0 {
		state.Screenshot = base64.StdEncoding.EncodeToString(shot)
	}
	return state, nil
}

func (m *ChromeManager) Navigate(ctx context.Context, url string) error {
	m.logger.Debug("Navigating", zap.String("url", url))
	return m.run(ctx, m.cfg.NavigationTimeout, chromedp.Navigate(url))
}

func (m *ChromeManager) GoBack(ctx context.Context) error {
	return m.run(ctx, m.cfg.NavigationTimeout, chromedp.NavigateBack())
}

func (m *ChromeManager) ensureElement(ctx context.Context, index int) (string, error) {
	sel := elementSelector(index)
	var found bool
	if err := m.run(ctx, m.cfg.ActionTimeout,
		chromedp.Evaluate(fmt.Sprintf(`!!document.querySelector(%q)`, sel), &found),
	); err != nil {
		return "", err
	}
	if !found {
		return "", missingElementError(index)
	}
	return sel, nil
}

func (m *ChromeManager) Click(ctx context.Context, index int) error {
	sel, err := m.ensureElement(ctx, index)
	if err != nil {
		return err
	}
	m.logger.Debug("Clicking", zap.String("selector", sel))
	return m.run(ctx, m.cfg.ActionTimeout,
		chromedp.ScrollIntoView(sel, chromedp.ByQuery),
		chromedp.Click(sel, chromedp.ByQuery),
	)
}

func (m *ChromeManager) InputText(ctx context.Context, index int, text string) error {
	sel, err := m.ensureElement(ctx, index)
	if err != nil {
		return err
	}
	m.logger.Debug("Typing", zap.String("selector", sel), zap.Int("length", len(text)))
	return m.run(ctx, m.cfg.ActionTimeout,
		chromedp.ScrollIntoView(sel, chromedp.ByQuery),
		chromedp.Focus(sel, chromedp.ByQuery),
		chromedp.SetValue(sel, "", chromedp.ByQuery),
		chromedp.SendKeys(sel, text, chromedp.ByQuery),
	)
}

func (m *ChromeManager) Scroll(ctx context.Context, down bool, amount int) error {
	return m.run(ctx, m.cfg.ActionTimeout, chromedp.Evaluate(scrollScript(down, amount), nil))
}

var namedKeys = map[string]string{
	"enter":     kb.Enter,
	"escape":    kb.Escape,
	"tab":       kb.Tab,
	"backspace": kb.Backspace,
	"delete":    kb.Delete,
	"arrowdown": kb.ArrowDown,
	"arrowup":   kb.ArrowUp,
	"pagedown":  kb.PageDown,
	"pageup":    kb.PageUp,
}

func (m *ChromeManager) SendKeys(ctx context.Context, keys string) error {
	if k, ok := namedKeys[strings.ToLower(strings.TrimSpace(keys))]; ok {
		keys = k
	}
	return m.run(ctx, m.cfg.ActionTimeout, chromedp.KeyEvent(keys))
}

func (m *ChromeManager) Tabs(ctx context.Context) ([]TabInfo, error) {
	infos, err := chromedp.Targets(m.browserCtx)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}

	byID := make(map[target.ID]*target.Info, len(infos))
	for _, info := range infos {
		if info.Type == "page" {
			byID[info.TargetID] = info
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// keep first-seen order so page ids stay stable across steps
	kept := m.order[:0]
	for _, id := range m.order {
		if _, ok := byID[id]; ok {
			kept = append(kept, id)
		}
	}
	m.order = kept
	for id := range byID {
		if !containsID(m.order, id) {
			m.order = append(m.order, id)
		}
	}

	tabs := make([]TabInfo, 0, len(m.order))
	for i, id := range m.order {
		info := byID[id]
		tabs = append(tabs, TabInfo{PageID: i, URL: info.URL, Title: info.Title, id: string(id)})
	}
	return tabs, nil
}

func (m *ChromeManager) SwitchTab(ctx context.Context, pageID int) error {
	tabs, err := m.Tabs(ctx)
	if err != nil {
		return err
	}
	if pageID < 0 || pageID >= len(tabs) {
		return fmt.Errorf("%w: page_id %d", ErrNoSuchTab, pageID)
	}
	id := target.ID(tabs[pageID].id)

	m.mu.Lock()
	tabCtx, ok := m.tabs[id]
	if !ok {
		var cancel context.CancelFunc
		tabCtx, cancel = chromedp.NewContext(m.browserCtx, chromedp.WithTargetID(id))
		m.tabs[id] = tabCtx
		m.cancels = append(m.cancels, cancel)
	}
	m.current = id
	m.mu.Unlock()

	// Target.activateTarget is a browser-level command
	c := chromedp.FromContext(m.browserCtx)
	return target.ActivateTarget(id).Do(cdp.WithExecutor(ctx, c.Browser))
}

func (m *ChromeManager) OpenTab(ctx context.Context, url string) error {
	tabCtx, cancel := chromedp.NewContext(m.browserCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return fmt.Errorf("open tab: %w", err)
	}
	id := chromedp.FromContext(tabCtx).Target.TargetID

	m.mu.Lock()
	m.tabs[id] = tabCtx
	m.cancels = append(m.cancels, cancel)
	if !containsID(m.order, id) {
		m.order = append(m.order, id)
	}
	m.current = id
	m.mu.Unlock()

	return m.Navigate(ctx, url)
}

func (m *ChromeManager) HTML(ctx context.Context) (string, error) {
	var html string
	if err := m.run(ctx, m.cfg.ActionTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (m *ChromeManager) Close() {
	m.mu.Lock()
	cancels := m.cancels
	m.cancels = nil
	m.mu.Unlock()

	for i := len(cancels) - 1; i >= 0; i-- {
		cancels[i]()
	}
	if m.browserCancel != nil {
		m.browserCancel()
	}
	if m.allocCancel != nil {
		m.allocCancel()
	}
}

func containsID(ids []target.ID, id target.ID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
