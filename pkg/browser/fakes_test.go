package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/goccy/go-json"
	"github.com/playwright-community/playwright-go"
)

var errNoElement = fmt.Errorf("%w: element not found", playwright.ErrTimeout)

type fakeElement struct {
	text   string
	attrs  map[string]string
	hidden bool
	clicks int
	value  string
}

// fakeLocator stands in for a driver locator. Unlike the real one it acts
// on every element it holds, so tests can tell whether First was applied.
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
	for _, e := range l.elements {
		e.clicks++
	}
	return nil
}

func (l *fakeLocator) Fill(value string, _ ...playwright.LocatorFillOptions) error {
	if len(l.elements) == 0 {
		return errNoElement
	}
	for _, e := range l.elements {
		e.value = value
	}
	return nil
}

func (l *fakeLocator) TextContent(...playwright.LocatorTextContentOptions) (string, error) {
	if len(l.elements) == 0 {
		return "", errNoElement
	}
	return l.elements[0].text, nil
}

func (l *fakeLocator) GetAttribute(name string, _ ...playwright.LocatorGetAttributeOptions) (string, error) {
	if len(l.elements) == 0 {
		return "", errNoElement
	}
	return l.elements[0].attrs[name], nil
}

func (l *fakeLocator) IsVisible(...playwright.LocatorIsVisibleOptions) (bool, error) {
	return len(l.elements) > 0 && !l.elements[0].hidden, nil
}

func (l *fakeLocator) WaitFor(...playwright.LocatorWaitForOptions) error {
	if len(l.elements) == 0 {
		return errNoElement
	}
	return nil
}

type fakePage struct {
	playwright.Page

	mu             sync.Mutex
	events         *[]string
	roles          map[string][]*fakeElement
	selectors      map[string][]*fakeElement
	url            string
	closed         bool
	closeErr       error
	defaultTimeout float64
	screenshots    []string
	roleQueries    []playwright.PageGetByRoleOptions
	lastWait       playwright.PageWaitForSelectorOptions
}

func newFakePage() *fakePage {
	return &fakePage{
		roles:     map[string][]*fakeElement{},
		selectors: map[string][]*fakeElement{},
		url:       "about:blank",
	}
}

func (p *fakePage) GetByRole(role playwright.AriaRole, options ...playwright.PageGetByRoleOptions) playwright.Locator {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := string(role)
	if len(options) > 0 {
		p.roleQueries = append(p.roleQueries, options[0])
		if name, ok := options[0].Name.(string); ok {
			key += "|" + name
		}
	}
	return &fakeLocator{elements: p.roles[key]}
}

func (p *fakePage) GetByText(text interface{}, _ ...playwright.PageGetByTextOptions) playwright.Locator {
	p.mu.Lock()
	defer p.mu.Unlock()
	var matches []*fakeElement
	for _, elements := range p.selectors {
		for _, e := range elements {
			if s, ok := text.(string); ok && e.text == s {
				matches = append(matches, e)
			}
		}
	}
	return &fakeLocator{elements: matches}
}

func (p *fakePage) Locator(selector string, _ ...playwright.PageLocatorOptions) playwright.Locator {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &fakeLocator{elements: p.selectors[selector]}
}

func (p *fakePage) WaitForSelector(selector string, options ...playwright.PageWaitForSelectorOptions) (playwright.ElementHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(options) > 0 {
		p.lastWait = options[0]
	}
	if len(p.selectors[selector]) == 0 {
		return nil, fmt.Errorf("%w: waiting for locator(%q) to be visible", playwright.ErrTimeout, selector)
	}
	return nil, nil
}

func (p *fakePage) Screenshot(options ...playwright.PageScreenshotOptions) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errors.New("target page, context or browser has been closed")
	}
	png := []byte("\x89PNG fake")
	if len(options) > 0 && options[0].Path != nil {
		if options[0].FullPage == nil || !*options[0].FullPage {
			return nil, errors.New("expected a full page screenshot")
		}
		if err := os.WriteFile(*options[0].Path, png, 0600); err != nil {
			return nil, err
		}
		p.screenshots = append(p.screenshots, *options[0].Path)
	}
	return png, nil
}

func (p *fakePage) Content() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", errors.New("target page, context or browser has been closed")
	}
	return `<html><head><script>var token = "secret";</script></head><body><h1>Orders</h1></body></html>`, nil
}

func (p *fakePage) SetDefaultTimeout(timeout float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.defaultTimeout = timeout
}

func (p *fakePage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *fakePage) Goto(url string, _ ...playwright.PageGotoOptions) (playwright.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	return nil, nil
}

func (p *fakePage) Close(...playwright.PageCloseOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.events != nil {
		*p.events = append(*p.events, "close-page")
	}
	return p.closeErr
}

func (p *fakePage) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// cookieJar mirrors the storage state document the driver reads and writes.
type cookieJar struct {
	Cookies []map[string]interface{} `json:"cookies"`
	Origins []interface{}            `json:"origins"`
}

type fakeContext struct {
	playwright.BrowserContext

	events   *[]string
	page     *fakePage
	cookies  []map[string]interface{}
	stateErr error
	closeErr error
	viewport *playwright.Size
}

func (c *fakeContext) NewPage() (playwright.Page, error) {
	*c.events = append(*c.events, "new-page")
	return c.page, nil
}

func (c *fakeContext) StorageState(path ...string) (*playwright.StorageState, error) {
	*c.events = append(*c.events, "storage-state")
	if c.stateErr != nil {
		return nil, c.stateErr
	}
	data, err := json.Marshal(cookieJar{Cookies: c.cookies, Origins: []interface{}{}})
	if err != nil {
		return nil, err
	}
	if len(path) > 0 {
		if err := os.WriteFile(path[0], data, 0600); err != nil {
			return nil, err
		}
	}
	return &playwright.StorageState{}, nil
}

func (c *fakeContext) Close(...playwright.BrowserContextCloseOptions) error {
	*c.events = append(*c.events, "close-context")
	return c.closeErr
}

type fakeBrowser struct {
	playwright.Browser

	events        *[]string
	page          *fakePage
	contexts      []*fakeContext
	closeErr      error
	newContextErr error
}

func (b *fakeBrowser) NewContext(options ...playwright.BrowserNewContextOptions) (playwright.BrowserContext, error) {
	*b.events = append(*b.events, "new-context")
	if b.newContextErr != nil {
		return nil, b.newContextErr
	}
	c := &fakeContext{events: b.events, page: b.page}
	if len(options) > 0 {
		c.viewport = options[0].Viewport
		if options[0].StorageStatePath != nil {
			data, err := os.ReadFile(*options[0].StorageStatePath)
			if err != nil {
				return nil, err
			}
			var jar cookieJar
			if err := json.Unmarshal(data, &jar); err != nil {
				return nil, err
			}
			c.cookies = jar.Cookies
		}
	}
	b.contexts = append(b.contexts, c)
	return c, nil
}

func (b *fakeBrowser) Close(...playwright.BrowserCloseOptions) error {
	*b.events = append(*b.events, "close-browser")
	return b.closeErr
}

type fakeBrowserType struct {
	playwright.BrowserType

	browser    *fakeBrowser
	launchOpts []playwright.BrowserTypeLaunchOptions
	launchErr  error
}

func (t *fakeBrowserType) Launch(options ...playwright.BrowserTypeLaunchOptions) (playwright.Browser, error) {
	t.launchOpts = append(t.launchOpts, options...)
	if t.launchErr != nil {
		return nil, t.launchErr
	}
	return t.browser, nil
}

type fakeDriver struct {
	events      *[]string
	browserType *fakeBrowserType
	families    []Family
	stopErr     error
}

func (d *fakeDriver) BrowserType(family Family) (playwright.BrowserType, error) {
	d.families = append(d.families, family)
	return d.browserType, nil
}

func (d *fakeDriver) Stop() error {
	*d.events = append(*d.events, "stop-driver")
	return d.stopErr
}

// fakeStack wires one fake driver, browser and page together.
type fakeStack struct {
	events  []string
	page    *fakePage
	browser *fakeBrowser
	btype   *fakeBrowserType
	driver  *fakeDriver
}

func newFakeStack() *fakeStack {
	s := &fakeStack{page: newFakePage()}
	s.page.events = &s.events
	s.browser = &fakeBrowser{events: &s.events, page: s.page}
	s.btype = &fakeBrowserType{browser: s.browser}
	s.driver = &fakeDriver{events: &s.events, browserType: s.btype}
	return s
}

func (s *fakeStack) factory() DriverFactory {
	return func(context.Context) (Driver, error) {
		s.events = append(s.events, "start-driver")
		return s.driver, nil
	}
}

// readySession builds a PageReady session around page without a manager.
func readySession(page playwright.Page) *Session {
	return &Session{
		ID:        "test-session",
		TimeoutMs: 30000,
		state:     PageReady,
		page:      page,
	}
}
