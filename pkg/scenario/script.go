package scenario

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/uitest/pkg/browser"
)

// ScriptFile is the YAML layout of a step script:
//
//	scenarios:
//	  - title: Search orders
//	    tags: [smoke]
//	    steps:
//	      - action: goto
//	        url: /orders
//	      - action: fill
//	        target: {label: Search}
//	        value: "PO-1042"
//	      - action: click
//	        target: {role: button, name: Search, exact: true}
//	      - action: expect_text
//	        target: {testid: result-count}
//	        text: "1 order"
//
// fill and type values expand $VAR and ${VAR} from the environment, so
// credentials stay out of the script.
type ScriptFile struct {
	Scenarios []ScriptScenario `yaml:"scenarios"`
}

// ScriptScenario is one scenario of a script.
type ScriptScenario struct {
	Title string   `yaml:"title"`
	Tags  []string `yaml:"tags"`
	Steps []Step   `yaml:"steps"`
}

// Step is one scripted interaction.
type Step struct {
	Action    string   `yaml:"action"`
	Target    *Target  `yaml:"target,omitempty"`
	URL       string   `yaml:"url,omitempty"`
	Value     string   `yaml:"value,omitempty"`
	Values    []string `yaml:"values,omitempty"`
	Key       string   `yaml:"key,omitempty"`
	Selector  string   `yaml:"selector,omitempty"`
	State     string   `yaml:"state,omitempty"`
	Text      string   `yaml:"text,omitempty"`
	Path      string   `yaml:"path,omitempty"`
	TimeoutMs float64  `yaml:"timeout_ms,omitempty"`
}

// Target is the YAML form of a browser.Locator. Exactly one of the strategy
// fields must be set. Text, label and placeholder may be empty when a
// pattern matches instead; a pattern alone targets text.
type Target struct {
	Role        string  `yaml:"role,omitempty"`
	Name        string  `yaml:"name,omitempty"`
	Text        *string `yaml:"text,omitempty"`
	Label       *string `yaml:"label,omitempty"`
	TestID      string  `yaml:"testid,omitempty"`
	Placeholder *string `yaml:"placeholder,omitempty"`
	Selector    string  `yaml:"selector,omitempty"`
	Exact       bool    `yaml:"exact,omitempty"`
	Pattern     string  `yaml:"pattern,omitempty"`
}

// Locator converts t, validating the strategy, role and pattern up front.
func (t *Target) Locator() (browser.Locator, error) {
	var locs []browser.Locator
	if t.Role != "" {
		if _, err := browser.ParseRole(t.Role); err != nil {
			return browser.Locator{}, err
		}
		locs = append(locs, browser.ByRole(t.Role, t.Name))
	}
	if t.Text != nil {
		locs = append(locs, browser.ByText(*t.Text))
	}
	if t.Label != nil {
		locs = append(locs, browser.ByLabel(*t.Label))
	}
	if t.TestID != "" {
		locs = append(locs, browser.ByTestID(t.TestID))
	}
	if t.Placeholder != nil {
		locs = append(locs, browser.ByPlaceholder(*t.Placeholder))
	}
	if t.Selector != "" {
		locs = append(locs, browser.BySelector(t.Selector))
	}
	if len(locs) == 0 && t.Pattern != "" {
		locs = append(locs, browser.ByText(""))
	}
	if len(locs) != 1 {
		return browser.Locator{}, errors.New("target must set exactly one of role, text, label, testid, placeholder, selector")
	}
	if t.Name != "" && t.Role == "" {
		return browser.Locator{}, errors.New("target name is only valid with role")
	}

	loc := locs[0]
	switch {
	case t.Pattern != "":
		if loc.Strategy == browser.StrategyTestID || loc.Strategy == browser.StrategySelector {
			return browser.Locator{}, fmt.Errorf("pattern is not supported for %s targets", loc.Strategy)
		}
		if _, err := regexp.Compile(t.Pattern); err != nil {
			return browser.Locator{}, fmt.Errorf("invalid target pattern: %w", err)
		}
	case loc.Value == "" && loc.Strategy != browser.StrategyRole:
		return browser.Locator{}, fmt.Errorf("%s target needs a value or a pattern", loc.Strategy)
	}
	loc.Exact = t.Exact
	loc.Pattern = t.Pattern
	return loc, nil
}

// stepFunc runs one compiled step.
type stepFunc func(ctx context.Context, a *browser.Actions) error

// LoadScripts loads every script named by paths. Directories contribute
// their *.yaml and *.yml files in name order.
func LoadScripts(paths ...string) ([]Scenario, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read script path: %w", err)
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}
		for _, pattern := range []string{"*.yaml", "*.yml"} {
			matches, err := filepath.Glob(filepath.Join(path, pattern))
			if err != nil {
				return nil, err
			}
			files = append(files, matches...)
		}
	}
	sort.Strings(files)

	var scenarios []Scenario
	for _, file := range files {
		loaded, err := LoadScript(file)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, loaded...)
	}
	return scenarios, nil
}

// LoadScript parses and compiles a YAML step script. Unknown fields,
// actions, strategies and roles are rejected here, before any browser work.
func LoadScript(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	scenarios, err := ParseScript(bytes.NewReader(data), path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return scenarios, nil
}

// ParseScript compiles a script read from r. source labels the scenarios.
func ParseScript(r io.Reader, source string) ([]Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file ScriptFile
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("script is empty")
		}
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	if len(file.Scenarios) == 0 {
		return nil, errors.New("script defines no scenarios")
	}

	scenarios := make([]Scenario, 0, len(file.Scenarios))
	for i, sc := range file.Scenarios {
		if strings.TrimSpace(sc.Title) == "" {
			return nil, fmt.Errorf("scenario %d: title is required", i+1)
		}
		steps := make([]stepFunc, 0, len(sc.Steps))
		for j, step := range sc.Steps {
			fn, err := compileStep(step)
			if err != nil {
				return nil, fmt.Errorf("scenario %q step %d (%s): %w", sc.Title, j+1, step.Action, err)
			}
			steps = append(steps, fn)
		}
		scenarios = append(scenarios, Scenario{
			Title:  sc.Title,
			Tags:   sc.Tags,
			Source: source,
			Run:    runSteps(steps),
		})
	}
	return scenarios, nil
}

func runSteps(steps []stepFunc) func(context.Context, *browser.Actions) error {
	return func(ctx context.Context, a *browser.Actions) error {
		for i, step := range steps {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := step(ctx, a); err != nil {
				return fmt.Errorf("step %d: %w", i+1, err)
			}
		}
		return nil
	}
}

func compileStep(step Step) (stepFunc, error) {
	var loc browser.Locator
	if step.Target != nil {
		var err error
		if loc, err = step.Target.Locator(); err != nil {
			return nil, err
		}
	}
	needTarget := func() error {
		if step.Target == nil {
			return errors.New("target is required")
		}
		return nil
	}
	within := func(a *browser.Actions) *browser.Actions {
		if step.TimeoutMs > 0 {
			return a.Within(step.TimeoutMs)
		}
		return a
	}

	switch step.Action {
	case "goto":
		if step.URL == "" {
			return nil, errors.New("url is required")
		}
		return func(_ context.Context, a *browser.Actions) error { return within(a).Goto(step.URL) }, nil

	case "back":
		return func(_ context.Context, a *browser.Actions) error { return within(a).Back() }, nil

	case "forward":
		return func(_ context.Context, a *browser.Actions) error { return within(a).Forward() }, nil

	case "reload":
		return func(_ context.Context, a *browser.Actions) error { return within(a).Reload() }, nil

	case "click":
		if err := needTarget(); err != nil {
			return nil, err
		}
		return func(_ context.Context, a *browser.Actions) error { return within(a).Click(loc) }, nil

	case "fill", "type":
		if err := needTarget(); err != nil {
			return nil, err
		}
		value := os.ExpandEnv(step.Value)
		if step.Action == "type" {
			return func(_ context.Context, a *browser.Actions) error { return within(a).Type(loc, value) }, nil
		}
		return func(_ context.Context, a *browser.Actions) error { return within(a).Fill(loc, value) }, nil

	case "press":
		if err := needTarget(); err != nil {
			return nil, err
		}
		if step.Key == "" {
			return nil, errors.New("key is required")
		}
		return func(_ context.Context, a *browser.Actions) error { return within(a).Press(loc, step.Key) }, nil

	case "check", "uncheck":
		if err := needTarget(); err != nil {
			return nil, err
		}
		if step.Action == "uncheck" {
			return func(_ context.Context, a *browser.Actions) error { return within(a).Uncheck(loc) }, nil
		}
		return func(_ context.Context, a *browser.Actions) error { return within(a).Check(loc) }, nil

	case "select":
		if err := needTarget(); err != nil {
			return nil, err
		}
		values := step.Values
		if len(values) == 0 && step.Value != "" {
			values = []string{step.Value}
		}
		if len(values) == 0 {
			return nil, errors.New("value or values is required")
		}
		return func(_ context.Context, a *browser.Actions) error {
			_, err := within(a).SelectOption(loc, values...)
			return err
		}, nil

	case "hover":
		if err := needTarget(); err != nil {
			return nil, err
		}
		return func(_ context.Context, a *browser.Actions) error { return within(a).Hover(loc) }, nil

	case "wait":
		switch {
		case step.Selector != "" && step.Target != nil:
			return nil, errors.New("set either selector or target, not both")
		case step.Selector != "":
			return func(_ context.Context, a *browser.Actions) error { return within(a).WaitForSelector(step.Selector) }, nil
		case step.Target != nil:
			switch step.State {
			case "", "attached", "detached", "visible", "hidden":
			default:
				return nil, fmt.Errorf("invalid wait state: %s", step.State)
			}
			return func(_ context.Context, a *browser.Actions) error { return within(a).WaitFor(loc, step.State) }, nil
		default:
			return nil, errors.New("selector or target is required")
		}

	case "wait_url":
		if step.URL == "" {
			return nil, errors.New("url is required")
		}
		return func(_ context.Context, a *browser.Actions) error { return within(a).WaitForURL(step.URL) }, nil

	case "wait_load":
		switch step.State {
		case "", "load", "domcontentloaded", "networkidle":
		default:
			return nil, fmt.Errorf("invalid load state: %s", step.State)
		}
		return func(_ context.Context, a *browser.Actions) error { return within(a).WaitForLoadState(step.State) }, nil

	case "expect_visible", "expect_hidden":
		if err := needTarget(); err != nil {
			return nil, err
		}
		wantVisible := step.Action == "expect_visible"
		return func(_ context.Context, a *browser.Actions) error {
			visible, err := within(a).IsVisible(loc)
			if err != nil {
				return err
			}
			if visible != wantVisible {
				return &ExpectationError{Target: loc.String(), Want: visibility(wantVisible), Got: visibility(visible)}
			}
			return nil
		}, nil

	case "expect_text":
		if step.Text == "" {
			return nil, errors.New("text is required")
		}
		if step.Target == nil {
			return func(_ context.Context, a *browser.Actions) error {
				found, err := within(a).HasText(step.Text, false)
				if err != nil {
					return err
				}
				if !found {
					return &ExpectationError{Target: "page", Want: fmt.Sprintf("text %q", step.Text), Got: "no match"}
				}
				return nil
			}, nil
		}
		return func(_ context.Context, a *browser.Actions) error {
			text, err := within(a).Text(loc)
			if err != nil {
				return err
			}
			if !strings.Contains(text, step.Text) {
				return &ExpectationError{Target: loc.String(), Want: fmt.Sprintf("text %q", step.Text), Got: fmt.Sprintf("%q", text)}
			}
			return nil
		}, nil

	case "screenshot":
		if step.Path == "" {
			return nil, errors.New("path is required")
		}
		if !filepath.IsAbs(step.Path) && !filepath.IsLocal(step.Path) {
			return nil, fmt.Errorf("screenshot path %q leaves the results directory", step.Path)
		}
		return func(ctx context.Context, a *browser.Actions) error {
			path := step.Path
			if !filepath.IsAbs(path) {
				path = filepath.Join(ResultsDir(ctx), path)
			}
			return a.Screenshot(path)
		}, nil

	case "":
		return nil, errors.New("action is required")

	default:
		return nil, fmt.Errorf("unknown action %q", step.Action)
	}
}

func visibility(visible bool) string {
	if visible {
		return "visible"
	}
	return "hidden"
}

// ExpectationError reports a failed scripted assertion.
type ExpectationError struct {
	Target string
	Want   string
	Got    string
}

func (e *ExpectationError) Error() string {
	return fmt.Sprintf("expected %s to be %s, got %s", e.Target, e.Want, e.Got)
}

type resultsDirKey struct{}

// WithResultsDir attaches the run's results directory to ctx. Scripted
// screenshots with relative paths are written under it.
func WithResultsDir(ctx context.Context, dir string) context.Context {
	return context.WithValue(ctx, resultsDirKey{}, dir)
}

// ResultsDir returns the directory set by WithResultsDir, or ".".
func ResultsDir(ctx context.Context) string {
	if dir, ok := ctx.Value(resultsDirKey{}).(string); ok && dir != "" {
		return dir
	}
	return "."
}
