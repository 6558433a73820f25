package browser

import (
	"fmt"
	"strings"

	"github.com/entrhq/uitest/pkg/config"
)

// Family selects the browser engine.
type Family string

const (
	// Chromium is the default engine
	Chromium Family = "chromium"
	// Firefox uses the patched Gecko build shipped with the driver
	Firefox Family = "firefox"
	// WebKit uses the WebKit build shipped with the driver
	WebKit Family = "webkit"
)

// ParseFamily maps a browser name to a Family. An empty name selects
// Chromium; unknown names fail with *UnknownFamilyError.
func ParseFamily(name string) (Family, error) {
	switch Family(strings.ToLower(strings.TrimSpace(name))) {
	case "", Chromium:
		return Chromium, nil
	case Firefox:
		return Firefox, nil
	case WebKit:
		return WebKit, nil
	default:
		return "", &UnknownFamilyError{Family: name}
	}
}

// Strategy is how a Locator finds elements.
type Strategy string

const (
	StrategyRole        Strategy = "role"
	StrategyText        Strategy = "text"
	StrategyLabel       Strategy = "label"
	StrategyTestID      Strategy = "testid"
	StrategyPlaceholder Strategy = "placeholder"
	StrategySelector    Strategy = "selector"
)

// ParseStrategy maps a strategy tag to a Strategy, rejecting unknown tags
// with *UnknownStrategyError.
func ParseStrategy(name string) (Strategy, error) {
	switch s := Strategy(strings.ToLower(strings.TrimSpace(name))); s {
	case StrategyRole, StrategyText, StrategyLabel, StrategyTestID, StrategyPlaceholder, StrategySelector:
		return s, nil
	case "test-id", "test_id":
		return StrategyTestID, nil
	case "css", "raw":
		return StrategySelector, nil
	default:
		return "", &UnknownStrategyError{Strategy: name}
	}
}

// Locator declares which elements an operation targets.
type Locator struct {
	Strategy Strategy

	// Role is the ARIA role name, for StrategyRole only
	Role string

	// Value is the accessible name, text, label, placeholder, test id or
	// raw selector, depending on Strategy
	Value string

	// Exact requires a whole-string, case-sensitive match of Value
	Exact bool

	// Pattern is a regular expression used instead of Value for the
	// role name, text, label and placeholder strategies
	Pattern string
}

// ByRole targets elements with an ARIA role and, if name is non-empty,
// an accessible name.
func ByRole(role, name string) Locator {
	return Locator{Strategy: StrategyRole, Role: role, Value: name}
}

// ByText targets elements by their text content.
func ByText(text string) Locator {
	return Locator{Strategy: StrategyText, Value: text}
}

// ByLabel targets form controls by their associated label.
func ByLabel(label string) Locator {
	return Locator{Strategy: StrategyLabel, Value: label}
}

// ByTestID targets elements by their data-testid attribute.
func ByTestID(id string) Locator {
	return Locator{Strategy: StrategyTestID, Value: id}
}

// ByPlaceholder targets inputs by placeholder text.
func ByPlaceholder(text string) Locator {
	return Locator{Strategy: StrategyPlaceholder, Value: text}
}

// BySelector targets elements with a raw driver selector (CSS, XPath, ...).
func BySelector(selector string) Locator {
	return Locator{Strategy: StrategySelector, Value: selector}
}

// Exactly returns a copy of l requiring an exact match.
func (l Locator) Exactly() Locator {
	l.Exact = true
	return l
}

// Matching returns a copy of l matching pattern instead of Value.
func (l Locator) Matching(pattern string) Locator {
	l.Pattern = pattern
	return l
}

func (l Locator) String() string {
	target := l.Value
	if l.Pattern != "" {
		target = "/" + l.Pattern + "/"
	}
	if l.Strategy == StrategyRole {
		if target == "" {
			return fmt.Sprintf("role=%s", l.Role)
		}
		return fmt.Sprintf("role=%s[name=%q]", l.Role, target)
	}
	return fmt.Sprintf("%s=%s", l.Strategy, target)
}

// Viewport is the fixed page size of a context.
type Viewport struct {
	Width  int
	Height int
}

// ManagerConfig configures the sessions a Manager creates.
type ManagerConfig struct {
	Family   Family
	Headless bool

	// SlowMoMs delays each driver action; ignored when Headless
	SlowMoMs float64

	Viewport Viewport

	// TimeoutMs is the default for waits and actions
	TimeoutMs float64

	// BaseURL resolves relative navigation
	BaseURL string
}

// ManagerConfigFrom derives session settings from the run configuration.
func ManagerConfigFrom(cfg *config.Config) (ManagerConfig, error) {
	family, err := ParseFamily(cfg.Browser)
	if err != nil {
		return ManagerConfig{}, err
	}
	return ManagerConfig{
		Family:    family,
		Headless:  cfg.Headless,
		SlowMoMs:  cfg.EffectiveSlowMo(),
		Viewport:  Viewport{Width: cfg.Viewport.Width, Height: cfg.Viewport.Height},
		TimeoutMs: cfg.TimeoutMs,
		BaseURL:   cfg.BaseURL,
	}, nil
}

func (c ManagerConfig) withDefaults() ManagerConfig {
	if c.Family == "" {
		c.Family = Chromium
	}
	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		c.Viewport = Viewport{Width: config.DefaultViewportWidth, Height: config.DefaultViewportHeight}
	}
	if c.TimeoutMs <= 0 {
		c.TimeoutMs = config.DefaultTimeoutMs
	}
	if c.Headless {
		c.SlowMoMs = 0
	}
	return c
}
