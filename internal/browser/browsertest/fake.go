// Package browsertest provides an in-memory browser.Driver for tests.
package browsertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/nbenliogludev/go-browser-use/internal/browser"
)

// Call records one driver invocation.
type Call struct {
	Method string
	Args   []any
}

// Driver is a scripted browser.Driver. States are returned in order; the
// last one repeats once the list is exhausted.
type Driver struct {
	mu sync.Mutex

	States []*browser.State
	Page   string // HTML returned by HTML

	// Errors maps a method name to the error it should return.
	Errors map[string]error

	Calls  []Call
	Closed bool

	stateIdx int
	tabs     []browser.TabInfo
	current  int
}

func New(states ...*browser.State) *Driver {
	return &Driver{States: states, Errors: map[string]error{}}
}

func (d *Driver) record(method string, args ...any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls = append(d.Calls, Call{Method: method, Args: args})
	return d.Errors[method]
}

// Methods returns the recorded method names in call order.
func (d *Driver) Methods() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.Calls))
	for _, c := range d.Calls {
		out = append(out, c.Method)
	}
	return out
}

func (d *Driver) State(ctx context.Context, withScreenshot bool) (*browser.State, error) {
	if err := d.record("State", withScreenshot); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.States) == 0 {
		return &browser.State{URL: "about:blank"}, nil
	}
	idx := d.stateIdx
	if idx >= len(d.States) {
		idx = len(d.States) - 1
	} else {
		d.stateIdx++
	}

	s := *d.States[idx]
	if !withScreenshot {
		s.Screenshot = ""
	}
	return &s, nil
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	return d.record("Navigate", url)
}

func (d *Driver) GoBack(ctx context.Context) error {
	return d.record("GoBack")
}

func (d *Driver) Click(ctx context.Context, index int) error {
	return d.record("Click", index)
}

func (d *Driver) InputText(ctx context.Context, index int, text string) error {
	return d.record("InputText", index, text)
}

func (d *Driver) Scroll(ctx context.Context, down bool, amount int) error {
	return d.record("Scroll", down, amount)
}

func (d *Driver) SendKeys(ctx context.Context, keys string) error {
	return d.record("SendKeys", keys)
}

func (d *Driver) Tabs(ctx context.Context) ([]browser.TabInfo, error) {
	if err := d.record("Tabs"); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]browser.TabInfo(nil), d.tabs...), nil
}

func (d *Driver) SwitchTab(ctx context.Context, pageID int) error {
	if err := d.record("SwitchTab", pageID); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if pageID < 0 || pageID >= len(d.tabs) {
		return fmt.Errorf("%w: page_id %d", browser.ErrNoSuchTab, pageID)
	}
	d.current = pageID
	return nil
}

func (d *Driver) OpenTab(ctx context.Context, url string) error {
	if err := d.record("OpenTab", url); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tabs = append(d.tabs, browser.TabInfo{PageID: len(d.tabs), URL: url})
	d.current = len(d.tabs) - 1
	return nil
}

func (d *Driver) HTML(ctx context.Context) (string, error) {
	if err := d.record("HTML"); err != nil {
		return "", err
	}
	return d.Page, nil
}

func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Closed = true
}

var _ browser.Driver = (*Driver)(nil)
