package browser

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/uitest/pkg/config"
	"github.com/entrhq/uitest/pkg/logging"
)

// DefaultTypeDelayMs is the pause between key presses for Type.
const DefaultTypeDelayMs = 50.0

// Actions performs element interactions against a session's page.
//
// Actions that target a Locator act on its first match in document order.
// Reads return zero values for elements that are not on the page instead of
// failing, so scenarios can assert on absence.
type Actions struct {
	session     *Session
	page        playwright.Page
	baseURL     string
	timeoutMs   float64
	typeDelayMs float64
	logger      *logging.Logger
}

// ActionsOption customizes NewActions.
type ActionsOption func(*Actions)

// WithDefaultTimeout overrides the session's timeout for waits and actions.
func WithDefaultTimeout(ms float64) ActionsOption {
	return func(a *Actions) { a.timeoutMs = ms }
}

// WithBaseURL overrides the base URL relative navigation resolves against.
func WithBaseURL(base string) ActionsOption {
	return func(a *Actions) { a.baseURL = base }
}

// WithTypeDelay sets the pause between key presses for Type.
func WithTypeDelay(ms float64) ActionsOption {
	return func(a *Actions) { a.typeDelayMs = ms }
}

// WithLogger sets the logger for interaction traces.
func WithLogger(logger *logging.Logger) ActionsOption {
	return func(a *Actions) { a.logger = logger }
}

// NewActions binds an interaction layer to the session's active page.
// It fails with ErrSessionNotReady if the session has no page.
func NewActions(s *Session, opts ...ActionsOption) (*Actions, error) {
	if s == nil {
		return nil, ErrSessionNotReady
	}
	page := s.Page()
	if page == nil {
		return nil, ErrSessionNotReady
	}

	a := &Actions{
		session:     s,
		page:        page,
		baseURL:     s.BaseURL,
		timeoutMs:   s.TimeoutMs,
		typeDelayMs: DefaultTypeDelayMs,
		logger:      s.logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.timeoutMs <= 0 {
		a.timeoutMs = config.DefaultTimeoutMs
	}
	return a, nil
}

// Within returns a copy of a using timeoutMs for its waits and actions.
func (a *Actions) Within(timeoutMs float64) *Actions {
	c := *a
	c.timeoutMs = timeoutMs
	return &c
}

// Timeout returns the timeout in milliseconds applied to waits and actions.
func (a *Actions) Timeout() float64 {
	return a.timeoutMs
}

// Session returns the session a is bound to.
func (a *Actions) Session() *Session {
	return a.session
}

// Page returns the raw driver page.
func (a *Actions) Page() playwright.Page {
	return a.page
}

// Resolve builds the driver locator for loc. Unknown strategies and roles
// fail immediately.
func (a *Actions) Resolve(loc Locator) (playwright.Locator, error) {
	strategy, err := ParseStrategy(string(loc.Strategy))
	if err != nil {
		return nil, err
	}
	loc.Strategy = strategy

	text, err := loc.matcher()
	if err != nil {
		return nil, err
	}
	var exact *bool
	if loc.Exact {
		exact = playwright.Bool(true)
	}

	switch loc.Strategy {
	case StrategyRole:
		role, err := ParseRole(loc.Role)
		if err != nil {
			return nil, err
		}
		opts := playwright.PageGetByRoleOptions{Exact: exact}
		if text != nil {
			opts.Name = text
		}
		return a.page.GetByRole(role, opts), nil
	case StrategyText:
		return a.page.GetByText(text, playwright.PageGetByTextOptions{Exact: exact}), nil
	case StrategyLabel:
		return a.page.GetByLabel(text, playwright.PageGetByLabelOptions{Exact: exact}), nil
	case StrategyPlaceholder:
		return a.page.GetByPlaceholder(text, playwright.PageGetByPlaceholderOptions{Exact: exact}), nil
	case StrategyTestID:
		return a.page.GetByTestId(loc.Value), nil
	case StrategySelector:
		return a.page.Locator(loc.Value), nil
	default:
		return nil, &UnknownStrategyError{Strategy: string(loc.Strategy)}
	}
}

// matcher returns the string or *regexp.Regexp the driver matches against.
// Only role locators may omit it.
func (l Locator) matcher() (interface{}, error) {
	if l.Pattern != "" {
		if l.Strategy == StrategyTestID || l.Strategy == StrategySelector {
			return nil, fmt.Errorf("locator %s: patterns are not supported for %s", l, l.Strategy)
		}
		re, err := regexp.Compile(l.Pattern)
		if err != nil {
			return nil, fmt.Errorf("locator %s: invalid pattern: %w", l, err)
		}
		return re, nil
	}
	if l.Value == "" {
		if l.Strategy == StrategyRole {
			return nil, nil
		}
		return nil, fmt.Errorf("locator %s: value is required", l)
	}
	return l.Value, nil
}

func (a *Actions) first(loc Locator) (playwright.Locator, error) {
	l, err := a.Resolve(loc)
	if err != nil {
		return nil, err
	}
	return l.First(), nil
}

// wrap converts driver timeouts into *TimeoutError.
func (a *Actions) wrap(action, selector string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return &TimeoutError{Selector: selector, TimeoutMs: a.timeoutMs, Err: err}
	}
	return fmt.Errorf("%s %s: %w", action, selector, err)
}

func (a *Actions) wrapURL(action, target string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return &TimeoutError{URL: target, TimeoutMs: a.timeoutMs, Err: err}
	}
	return fmt.Errorf("%s %s: %w", action, target, err)
}

func (a *Actions) timeout() *float64 {
	return playwright.Float(a.timeoutMs)
}

// Click clicks the first element matching loc.
func (a *Actions) Click(loc Locator) error {
	l, err := a.first(loc)
	if err != nil {
		return err
	}
	a.logger.Debugf("click %s", loc)
	return a.wrap("click", loc.String(), l.Click(playwright.LocatorClickOptions{Timeout: a.timeout()}))
}

// Fill replaces the value of the first input matching loc.
func (a *Actions) Fill(loc Locator, value string) error {
	l, err := a.first(loc)
	if err != nil {
		return err
	}
	a.logger.Debugf("fill %s", loc)
	return a.wrap("fill", loc.String(), l.Fill(value, playwright.LocatorFillOptions{Timeout: a.timeout()}))
}

// Type presses each character of text into the first match, for inputs
// that react to individual key events.
func (a *Actions) Type(loc Locator, text string) error {
	l, err := a.first(loc)
	if err != nil {
		return err
	}
	a.logger.Debugf("type into %s", loc)
	return a.wrap("type into", loc.String(), l.PressSequentially(text, playwright.LocatorPressSequentiallyOptions{
		Delay:   playwright.Float(a.typeDelayMs),
		Timeout: a.timeout(),
	}))
}

// Press sends a key or chord (e.g. "Enter", "Control+A") to the first match.
func (a *Actions) Press(loc Locator, key string) error {
	l, err := a.first(loc)
	if err != nil {
		return err
	}
	a.logger.Debugf("press %s on %s", key, loc)
	return a.wrap("press "+key+" on", loc.String(), l.Press(key, playwright.LocatorPressOptions{Timeout: a.timeout()}))
}

// Check ticks the first checkbox or radio matching loc.
func (a *Actions) Check(loc Locator) error {
	l, err := a.first(loc)
	if err != nil {
		return err
	}
	a.logger.Debugf("check %s", loc)
	return a.wrap("check", loc.String(), l.Check(playwright.LocatorCheckOptions{Timeout: a.timeout()}))
}

// Uncheck clears the first checkbox matching loc.
func (a *Actions) Uncheck(loc Locator) error {
	l, err := a.first(loc)
	if err != nil {
		return err
	}
	a.logger.Debugf("uncheck %s", loc)
	return a.wrap("uncheck", loc.String(), l.Uncheck(playwright.LocatorUncheckOptions{Timeout: a.timeout()}))
}

// SelectOption selects options by value or label in the first select
// matching loc and returns the values that ended up selected.
func (a *Actions) SelectOption(loc Locator, values ...string) ([]string, error) {
	l, err := a.first(loc)
	if err != nil {
		return nil, err
	}
	a.logger.Debugf("select %v in %s", values, loc)
	selected, err := l.SelectOption(playwright.SelectOptionValues{Values: &values}, playwright.LocatorSelectOptionOptions{Timeout: a.timeout()})
	return selected, a.wrap("select in", loc.String(), err)
}

// Hover moves the pointer over the first match.
func (a *Actions) Hover(loc Locator) error {
	l, err := a.first(loc)
	if err != nil {
		return err
	}
	return a.wrap("hover", loc.String(), l.Hover(playwright.LocatorHoverOptions{Timeout: a.timeout()}))
}

// Focus focuses the first match.
func (a *Actions) Focus(loc Locator) error {
	l, err := a.first(loc)
	if err != nil {
		return err
	}
	return a.wrap("focus", loc.String(), l.Focus(playwright.LocatorFocusOptions{Timeout: a.timeout()}))
}

// ScrollIntoView scrolls the first match into the viewport.
func (a *Actions) ScrollIntoView(loc Locator) error {
	l, err := a.first(loc)
	if err != nil {
		return err
	}
	return a.wrap("scroll to", loc.String(), l.ScrollIntoViewIfNeeded(playwright.LocatorScrollIntoViewIfNeededOptions{Timeout: a.timeout()}))
}

// WaitForSelector waits until selector matches a visible element.
func (a *Actions) WaitForSelector(selector string) error {
	a.logger.Debugf("wait for %s (%gms)", selector, a.timeoutMs)
	_, err := a.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		State:   waitState("visible"),
		Timeout: a.timeout(),
	})
	return a.wrap("wait for", selector, err)
}

// WaitFor waits until the first match of loc reaches state: attached,
// detached, visible or hidden.
func (a *Actions) WaitFor(loc Locator, state string) error {
	switch state {
	case "attached", "detached", "visible", "hidden":
	case "":
		state = "visible"
	default:
		return fmt.Errorf("invalid wait state: %s (must be 'attached', 'detached', 'visible', or 'hidden')", state)
	}
	l, err := a.first(loc)
	if err != nil {
		return err
	}
	a.logger.Debugf("wait for %s to be %s (%gms)", loc, state, a.timeoutMs)
	return a.wrap("wait for", loc.String(), l.WaitFor(playwright.LocatorWaitForOptions{
		State:   waitState(state),
		Timeout: a.timeout(),
	}))
}

// WaitForURL waits until the page URL matches target, which may be a glob
// pattern ("**/dashboard") or a URL relative to the base URL.
func (a *Actions) WaitForURL(target string) error {
	resolved := target
	if !strings.Contains(target, "*") {
		resolved = a.resolveURL(target)
	}
	a.logger.Debugf("wait for url %s (%gms)", resolved, a.timeoutMs)
	return a.wrapURL("wait for", resolved, a.page.WaitForURL(resolved, playwright.PageWaitForURLOptions{Timeout: a.timeout()}))
}

// WaitForLoadState waits for load, domcontentloaded or networkidle.
func (a *Actions) WaitForLoadState(state string) error {
	switch state {
	case "":
		state = "load"
	case "load", "domcontentloaded", "networkidle":
	default:
		return fmt.Errorf("invalid load state: %s (must be 'load', 'domcontentloaded', or 'networkidle')", state)
	}
	loadState := playwright.LoadState(state)
	return a.wrapURL("wait for "+state+" of", a.page.URL(), a.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   &loadState,
		Timeout: a.timeout(),
	}))
}

func waitState(state string) *playwright.WaitForSelectorState {
	s := playwright.WaitForSelectorState(state)
	return &s
}

// present resolves loc and counts its matches.
func (a *Actions) present(loc Locator) (playwright.Locator, int, error) {
	l, err := a.Resolve(loc)
	if err != nil {
		return nil, 0, err
	}
	n, err := l.Count()
	if err != nil {
		return nil, 0, a.wrap("count", loc.String(), err)
	}
	return l, n, nil
}

// Count returns the number of elements matching loc.
func (a *Actions) Count(loc Locator) (int, error) {
	_, n, err := a.present(loc)
	return n, err
}

// Text returns the text content of the first match, or "" if nothing matches.
func (a *Actions) Text(loc Locator) (string, error) {
	l, n, err := a.present(loc)
	if err != nil || n == 0 {
		return "", err
	}
	text, err := l.First().TextContent(playwright.LocatorTextContentOptions{Timeout: a.timeout()})
	return text, a.wrap("read text of", loc.String(), err)
}

// InnerText returns the rendered text of the first match, or "" if nothing
// matches.
func (a *Actions) InnerText(loc Locator) (string, error) {
	l, n, err := a.present(loc)
	if err != nil || n == 0 {
		return "", err
	}
	text, err := l.First().InnerText(playwright.LocatorInnerTextOptions{Timeout: a.timeout()})
	return text, a.wrap("read text of", loc.String(), err)
}

// Attribute returns an attribute of the first match. A missing element or
// attribute yields "".
func (a *Actions) Attribute(loc Locator, name string) (string, error) {
	l, n, err := a.present(loc)
	if err != nil || n == 0 {
		return "", err
	}
	value, err := l.First().GetAttribute(name, playwright.LocatorGetAttributeOptions{Timeout: a.timeout()})
	return value, a.wrap("read "+name+" of", loc.String(), err)
}

// IsVisible reports whether the first match is visible. No match is false.
func (a *Actions) IsVisible(loc Locator) (bool, error) {
	l, n, err := a.present(loc)
	if err != nil || n == 0 {
		return false, err
	}
	visible, err := l.First().IsVisible()
	return visible, a.wrap("check visibility of", loc.String(), err)
}

// IsHidden reports whether the first match is hidden. No match is hidden.
func (a *Actions) IsHidden(loc Locator) (bool, error) {
	l, n, err := a.present(loc)
	if err != nil {
		return false, err
	}
	if n == 0 {
		return true, nil
	}
	hidden, err := l.First().IsHidden()
	return hidden, a.wrap("check visibility of", loc.String(), err)
}

// IsEnabled reports whether the first match is enabled. No match is false.
func (a *Actions) IsEnabled(loc Locator) (bool, error) {
	l, n, err := a.present(loc)
	if err != nil || n == 0 {
		return false, err
	}
	enabled, err := l.First().IsEnabled(playwright.LocatorIsEnabledOptions{Timeout: a.timeout()})
	return enabled, a.wrap("check state of", loc.String(), err)
}

// IsChecked reports whether the first match is checked. No match is false.
func (a *Actions) IsChecked(loc Locator) (bool, error) {
	l, n, err := a.present(loc)
	if err != nil || n == 0 {
		return false, err
	}
	checked, err := l.First().IsChecked(playwright.LocatorIsCheckedOptions{Timeout: a.timeout()})
	return checked, a.wrap("check state of", loc.String(), err)
}

// HasText reports whether any element on the page contains text.
func (a *Actions) HasText(text string, exact bool) (bool, error) {
	loc := ByText(text)
	loc.Exact = exact
	n, err := a.Count(loc)
	return n > 0, err
}

// HasTextIn reports whether the first match of loc contains text.
func (a *Actions) HasTextIn(loc Locator, text string) (bool, error) {
	content, err := a.Text(loc)
	if err != nil {
		return false, err
	}
	return strings.Contains(content, text), nil
}

// Screenshot writes a full-page PNG to path, creating its directory.
func (a *Actions) Screenshot(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	_, err := a.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("screenshot failed: %w", err)
	}
	return nil
}

// ScreenshotBytes returns a full-page PNG.
func (a *Actions) ScreenshotBytes() ([]byte, error) {
	data, err := a.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return data, nil
}

// Goto navigates to target, resolving relative URLs against the base URL.
func (a *Actions) Goto(target string) error {
	resolved := a.resolveURL(target)
	a.logger.Debugf("goto %s", resolved)
	_, err := a.page.Goto(resolved, playwright.PageGotoOptions{Timeout: a.timeout()})
	return a.wrapURL("navigate to", resolved, err)
}

// Back navigates back in history.
func (a *Actions) Back() error {
	_, err := a.page.GoBack(playwright.PageGoBackOptions{Timeout: a.timeout()})
	return a.wrapURL("go back from", a.page.URL(), err)
}

// Forward navigates forward in history.
func (a *Actions) Forward() error {
	_, err := a.page.GoForward(playwright.PageGoForwardOptions{Timeout: a.timeout()})
	return a.wrapURL("go forward from", a.page.URL(), err)
}

// Reload reloads the current page.
func (a *Actions) Reload() error {
	_, err := a.page.Reload(playwright.PageReloadOptions{Timeout: a.timeout()})
	return a.wrapURL("reload", a.page.URL(), err)
}

// URL returns the current page URL.
func (a *Actions) URL() string {
	return a.page.URL()
}

func (a *Actions) resolveURL(target string) string {
	if a.baseURL == "" {
		return target
	}
	ref, err := url.Parse(target)
	if err != nil || ref.IsAbs() {
		return target
	}
	base, err := url.Parse(a.baseURL)
	if err != nil {
		return target
	}
	return base.ResolveReference(ref).String()
}
