package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Level represents the console verbosity level
type Level int

const (
	// LevelQuiet shows only failures, warnings and the final summary
	LevelQuiet Level = iota
	// LevelNormal shows scenario progress (default)
	LevelNormal
	// LevelVerbose shows stage-by-stage detail
	LevelVerbose
)

// ParseLevel maps a verbosity name to a Level.
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "quiet":
		return LevelQuiet, nil
	case "", "normal":
		return LevelNormal, nil
	case "verbose":
		return LevelVerbose, nil
	default:
		return LevelNormal, fmt.Errorf("invalid verbosity: %s (must be 'quiet', 'normal', or 'verbose')", name)
	}
}

// Console prints human-facing run progress. Concurrent scenarios share one
// Console, so every method serializes its writes. A nil Console prints
// nothing.
type Console struct {
	level  Level
	writer io.Writer
	mu     sync.Mutex

	colorReset     string
	colorCyan      string
	colorYellow    string
	colorGray      string
	colorBoldGreen string
	colorBoldRed   string
	colorBoldWhite string
}

// NewConsole creates a console printer writing to stdout.
func NewConsole(level Level) *Console {
	return NewConsoleWriter(level, os.Stdout)
}

// NewConsoleWriter creates a console printer writing to w.
func NewConsoleWriter(level Level, w io.Writer) *Console {
	return &Console{
		level:          level,
		writer:         w,
		colorReset:     "\033[0m",
		colorCyan:      "\033[36m",
		colorYellow:    "\033[33m",
		colorGray:      "\033[90m",
		colorBoldGreen: "\033[1;32m",
		colorBoldRed:   "\033[1;31m",
		colorBoldWhite: "\033[1;37m",
	}
}

func (c *Console) printf(min Level, format string, args ...interface{}) {
	if c == nil || c.level < min {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.writer, format, args...)
}

// Header prints a prominent header message
func (c *Console) Header(message string) {
	if c == nil {
		return
	}
	bar := strings.Repeat("=", 70)
	c.printf(LevelNormal, "\n%s%s\n  %s\n%s%s\n", c.colorBoldWhite, bar, message, bar, c.colorReset)
}

// Scenario announces a scenario start
func (c *Console) Scenario(title string) {
	if c == nil {
		return
	}
	c.printf(LevelNormal, "%s▶ %s%s\n", c.colorCyan, title, c.colorReset)
}

// Passf prints a success line
func (c *Console) Passf(format string, args ...interface{}) {
	if c == nil {
		return
	}
	c.printf(LevelNormal, "%s✓ %s%s\n", c.colorBoldGreen, fmt.Sprintf(format, args...), c.colorReset)
}

// Failf prints a failure line; shown even in quiet mode
func (c *Console) Failf(format string, args ...interface{}) {
	if c == nil {
		return
	}
	c.printf(LevelQuiet, "%s✗ %s%s\n", c.colorBoldRed, fmt.Sprintf(format, args...), c.colorReset)
}

// Warningf prints a warning line; shown even in quiet mode
func (c *Console) Warningf(format string, args ...interface{}) {
	if c == nil {
		return
	}
	c.printf(LevelQuiet, "%s⚠ Warning: %s%s\n", c.colorYellow, fmt.Sprintf(format, args...), c.colorReset)
}

// Verbosef prints detail only in verbose mode
func (c *Console) Verbosef(format string, args ...interface{}) {
	if c == nil {
		return
	}
	c.printf(LevelVerbose, "%s→ %s%s\n", c.colorGray, fmt.Sprintf(format, args...), c.colorReset)
}

// Summaryf prints the final summary line regardless of level
func (c *Console) Summaryf(format string, args ...interface{}) {
	if c == nil {
		return
	}
	c.printf(LevelQuiet, "\n%s%s%s\n", c.colorBoldWhite, fmt.Sprintf(format, args...), c.colorReset)
}
