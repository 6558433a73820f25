package scenario

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/uitest/pkg/browser"
)

var errNoElement = fmt.Errorf("%w: element not found", playwright.ErrTimeout)

type fakeElement struct {
	text    string
	hidden  bool
	clicks  int
	value   string
	onClick func()
}

// pwLocator lets fakeLocator embed the interface without a field named
// Locator hiding the Locator method.
type pwLocator = playwright.Locator

type fakeLocator struct {
	pwLocator
	elements []*fakeElement
}

func (l *fakeLocator) First() playwright.Locator {
	if len(l.elements) == 0 {
		return &fakeLocator{}
	}
	return &fakeLocator{elements: l.elements[:1]}
}

func (l *fakeLocator) Count() (int, error) {
	return len(l.elements), nil
}

func (l *fakeLocator) Click(...playwright.LocatorClickOptions) error {
	if len(l.elements) == 0 {
		return errNoElement
	}
	e := l.elements[0]
	e.clicks++
	if e.onClick != nil {
		e.onClick()
	}
	return nil
}

func (l *fakeLocator) Fill(value string, _ ...playwright.LocatorFillOptions) error {
	if len(l.elements) == 0 {
		return errNoElement
	}
	l.elements[0].value = value
	return nil
}

func (l *fakeLocator) TextContent(...playwright.LocatorTextContentOptions) (string, error) {
	if len(l.elements) == 0 {
		return "", errNoElement
	}
	return l.elements[0].text, nil
}

func (l *fakeLocator) IsVisible(...playwright.LocatorIsVisibleOptions) (bool, error) {
	return len(l.elements) > 0 && !l.elements[0].hidden, nil
}

// fakePage serves elements keyed by "role|name", "label:<text>" or a raw
// selector.
type fakePage struct {
	playwright.Page

	mu       sync.Mutex
	elements map[string][]*fakeElement
	url      string
	closed   bool
	visits   []string
}

func newFakePage() *fakePage {
	return &fakePage{elements: map[string][]*fakeElement{}, url: "about:blank"}
}

func (p *fakePage) add(key string, e *fakeElement) *fakeElement {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.elements[key] = append(p.elements[key], e)
	return e
}

func (p *fakePage) lookup(key string) playwright.Locator {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &fakeLocator{elements: p.elements[key]}
}

func (p *fakePage) GetByRole(role playwright.AriaRole, options ...playwright.PageGetByRoleOptions) playwright.Locator {
	key := string(role)
	if len(options) > 0 {
		if name, ok := options[0].Name.(string); ok {
			key += "|" + name
		}
	}
	return p.lookup(key)
}

func (p *fakePage) GetByLabel(text interface{}, _ ...playwright.PageGetByLabelOptions) playwright.Locator {
	return p.lookup(fmt.Sprintf("label:%v", text))
}

func (p *fakePage) GetByText(text interface{}, _ ...playwright.PageGetByTextOptions) playwright.Locator {
	p.mu.Lock()
	defer p.mu.Unlock()
	var matches []*fakeElement
	for _, elements := range p.elements {
		for _, e := range elements {
			if s, ok := text.(string); ok && e.text == s && !e.hidden {
				matches = append(matches, e)
			}
		}
	}
	return &fakeLocator{elements: matches}
}

func (p *fakePage) Locator(selector string, _ ...playwright.PageLocatorOptions) playwright.Locator {
	return p.lookup(selector)
}

func (p *fakePage) Goto(url string, _ ...playwright.PageGotoOptions) (playwright.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	p.visits = append(p.visits, url)
	return nil, nil
}

func (p *fakePage) GoBack(...playwright.PageGoBackOptions) (playwright.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visits = append(p.visits, "back")
	return nil, nil
}

func (p *fakePage) GoForward(...playwright.PageGoForwardOptions) (playwright.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visits = append(p.visits, "forward")
	return nil, nil
}

func (p *fakePage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *fakePage) SetDefaultTimeout(float64) {}

func (p *fakePage) Screenshot(options ...playwright.PageScreenshotOptions) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errors.New("target page, context or browser has been closed")
	}
	png := []byte("\x89PNG fake")
	if len(options) > 0 && options[0].Path != nil {
		if err := os.WriteFile(*options[0].Path, png, 0600); err != nil {
			return nil, err
		}
	}
	return png, nil
}

func (p *fakePage) Content() (string, error) {
	return `<html><head><title>Orders</title></head><body><h1>Orders</h1></body></html>`, nil
}

func (p *fakePage) Close(...playwright.PageCloseOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePage) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type fakeContext struct {
	playwright.BrowserContext
	page *fakePage
}

func (c *fakeContext) NewPage() (playwright.Page, error) {
	return c.page, nil
}

func (c *fakeContext) Close(...playwright.BrowserContextCloseOptions) error {
	return nil
}

type fakeBrowser struct {
	playwright.Browser
	page *fakePage
}

func (b *fakeBrowser) NewContext(...playwright.BrowserNewContextOptions) (playwright.BrowserContext, error) {
	return &fakeContext{page: b.page}, nil
}

func (b *fakeBrowser) Close(...playwright.BrowserCloseOptions) error {
	return nil
}

type fakeBrowserType struct {
	playwright.BrowserType
	browser *fakeBrowser
}

func (t *fakeBrowserType) Launch(...playwright.BrowserTypeLaunchOptions) (playwright.Browser, error) {
	return t.browser, nil
}

type fakeDriver struct {
	browserType *fakeBrowserType
	stopped     *int
	mu          *sync.Mutex
}

func (d *fakeDriver) BrowserType(browser.Family) (playwright.BrowserType, error) {
	return d.browserType, nil
}

func (d *fakeDriver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	*d.stopped++
	return nil
}

// fakeDrivers hands every session its own page, built by newPage.
type fakeDrivers struct {
	mu       sync.Mutex
	newPage  func() *fakePage
	pages    []*fakePage
	stopped  int
	inflight int
	peak     int
	failures int
}

func (f *fakeDrivers) factory() browser.DriverFactory {
	return func(context.Context) (browser.Driver, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failures > 0 {
			f.failures--
			return nil, errors.New("driver failed to start")
		}
		page := newFakePage()
		if f.newPage != nil {
			page = f.newPage()
		}
		f.pages = append(f.pages, page)
		return &fakeDriver{
			browserType: &fakeBrowserType{browser: &fakeBrowser{page: page}},
			stopped:     &f.stopped,
			mu:          &f.mu,
		}, nil
	}
}

// enter and leave track how many scenario bodies run at once.
func (f *fakeDrivers) enter() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inflight++
	if f.inflight > f.peak {
		f.peak = f.inflight
	}
}

func (f *fakeDrivers) leave() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inflight--
}
