package browser

import (
	"context"
	"fmt"
	"io"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/uitest/pkg/logging"
)

// Driver is a running automation driver process.
type Driver interface {
	// BrowserType returns the launcher for a browser family
	BrowserType(family Family) (playwright.BrowserType, error)

	// Stop terminates the driver process
	Stop() error
}

// DriverFactory starts a driver for one session.
type DriverFactory func(ctx context.Context) (Driver, error)

// DriverOptions configures the playwright driver.
type DriverOptions struct {
	// Install downloads the driver and browsers before starting
	Install bool

	// Browsers limits installation to these families; empty installs all
	Browsers []Family

	// Logger receives driver install output
	Logger *logging.Logger
}

func (o DriverOptions) runOptions() *playwright.RunOptions {
	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	if o.Logger != nil {
		opts.Stdout = o.Logger.Writer()
		opts.Stderr = o.Logger.Writer()
	}
	for _, family := range o.Browsers {
		opts.Browsers = append(opts.Browsers, string(family))
	}
	return opts
}

// InstallDriver downloads the playwright driver and the requested browsers.
func InstallDriver(opts DriverOptions) error {
	if err := playwright.Install(opts.runOptions()); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}
	return nil
}

// StartDriver starts the playwright driver, installing it first when
// opts.Install is set.
func StartDriver(opts DriverOptions) (Driver, error) {
	if opts.Install {
		if err := InstallDriver(opts); err != nil {
			return nil, err
		}
	}

	pw, err := playwright.Run(opts.runOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}
	return &playwrightDriver{pw: pw}, nil
}

// PlaywrightDrivers returns a factory that starts a fresh driver process per
// session. Installation, when requested, happens once before the first run.
func PlaywrightDrivers(opts DriverOptions) (DriverFactory, error) {
	if opts.Install {
		if err := InstallDriver(opts); err != nil {
			return nil, err
		}
		opts.Install = false
	}
	return func(ctx context.Context) (Driver, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return StartDriver(opts)
	}, nil
}

type playwrightDriver struct {
	pw *playwright.Playwright
}

func (d *playwrightDriver) BrowserType(family Family) (playwright.BrowserType, error) {
	switch family {
	case Chromium, "":
		return d.pw.Chromium, nil
	case Firefox:
		return d.pw.Firefox, nil
	case WebKit:
		return d.pw.WebKit, nil
	default:
		return nil, &UnknownFamilyError{Family: string(family)}
	}
}

func (d *playwrightDriver) Stop() error {
	if err := d.pw.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	return nil
}
