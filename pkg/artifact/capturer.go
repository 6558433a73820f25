package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/uitest/pkg/logging"
)

// ScreenshotDir is the results subdirectory receiving failure artifacts.
const ScreenshotDir = "screenshots"

const timestampLayout = "20060102_150405"

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// Result is the read-only view of a scenario outcome the capturer needs.
type Result interface {
	Name() string
	Failed() bool
}

// Capturer records failure evidence for scenarios.
type Capturer struct {
	dir      string
	registry *Registry
	logger   *logging.Logger
	domLimit int
	now      func() time.Time
}

// NewCapturer creates a capturer writing under <resultsDir>/screenshots.
func NewCapturer(resultsDir string, registry *Registry, logger *logging.Logger) *Capturer {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Capturer{
		dir:      filepath.Join(resultsDir, ScreenshotDir),
		registry: registry,
		logger:   logger,
		domLimit: DefaultDOMLimit,
		now:      time.Now,
	}
}

// Registry returns the registry artifacts are added to.
func (c *Capturer) Registry() *Registry {
	return c.registry
}

// FileName builds the artifact base name for a scenario: its title with
// path-unsafe characters replaced by '_', then a timestamp.
func FileName(title string, at time.Time) string {
	name := unsafeChars.ReplaceAllString(title, "_")
	if name == "" {
		name = "scenario"
	}
	return name + "_" + at.Format(timestampLayout)
}

// Capture saves a full-page screenshot and a DOM snapshot when result failed
// and page is still open. It returns the screenshot artifact and whether one
// was written. Capture errors are logged, never returned: evidence gathering
// must not change the scenario's outcome.
func (c *Capturer) Capture(ctx context.Context, result Result, page playwright.Page) (Artifact, bool) {
	if result == nil || !result.Failed() {
		return Artifact{}, false
	}
	if page == nil || page.IsClosed() {
		c.logger.Warnf("no open page to capture for failed scenario %q", result.Name())
		return Artifact{}, false
	}
	if err := ctx.Err(); err != nil {
		c.logger.Warnf("skipping capture for %q: %v", result.Name(), err)
		return Artifact{}, false
	}

	if err := os.MkdirAll(c.dir, 0750); err != nil {
		c.logger.Errorf("failed to create artifact directory: %v", err)
		return Artifact{}, false
	}

	at := c.now()
	base, err := c.reserveBase(FileName(result.Name(), at))
	if err != nil {
		c.logger.Errorf("failed to reserve artifact name for %q: %v", result.Name(), err)
		return Artifact{}, false
	}

	shot := Artifact{
		Kind:      KindScreenshot,
		Scenario:  result.Name(),
		Path:      filepath.Join(c.dir, base+".png"),
		CreatedAt: at,
	}
	if _, err := page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(shot.Path),
		FullPage: playwright.Bool(true),
	}); err != nil {
		c.logger.Errorf("failed to capture screenshot for %q: %v", result.Name(), err)
		_ = os.Remove(shot.Path)
		return Artifact{}, false
	}
	c.registry.Add(shot)
	c.logger.Infof("captured screenshot for %q: %s", result.Name(), shot.Path)

	if dom, err := c.captureDOM(page, result.Name(), filepath.Join(c.dir, base+".html"), at); err != nil {
		c.logger.Warnf("failed to capture DOM for %q: %v", result.Name(), err)
	} else {
		c.registry.Add(dom)
	}

	return shot, true
}

func (c *Capturer) captureDOM(page playwright.Page, scenario, path string, at time.Time) (Artifact, error) {
	raw, err := page.Content()
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to read page content: %w", err)
	}
	snapshot, err := CleanDOM(raw, c.domLimit)
	if err != nil {
		return Artifact{}, err
	}
	header := fmt.Sprintf("<!-- url: %s\n     title: %s\n     truncated: %v -->\n", page.URL(), snapshot.Title, snapshot.Truncated)
	if err := os.WriteFile(path, []byte(header+snapshot.HTML), 0600); err != nil {
		return Artifact{}, fmt.Errorf("failed to write DOM snapshot: %w", err)
	}
	return Artifact{Kind: KindDOM, Scenario: scenario, Path: path, CreatedAt: at}, nil
}

// reserveBase claims <base>.png by creating it exclusively, appending a
// counter when two failures of the same title land in the same second.
// Concurrent captures never share a name.
func (c *Capturer) reserveBase(base string) (string, error) {
	candidate := base
	for i := 1; ; i++ {
		f, err := os.OpenFile(filepath.Join(c.dir, candidate+".png"), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if err == nil {
			return candidate, f.Close()
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", err
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}
