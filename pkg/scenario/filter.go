package scenario

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// Filter selects scenarios by title and tag globs. Matching ignores case.
type Filter struct {
	title glob.Glob
	tags  []glob.Glob
}

// NewFilter compiles a title pattern and tag patterns. An empty title
// pattern matches every title; no tag patterns match every tag set.
func NewFilter(title string, tags []string) (*Filter, error) {
	f := &Filter{}
	if title != "" {
		g, err := glob.Compile(strings.ToLower(title))
		if err != nil {
			return nil, fmt.Errorf("invalid title pattern '%s': %w", title, err)
		}
		f.title = g
	}
	for _, pattern := range tags {
		g, err := glob.Compile(strings.ToLower(strings.TrimPrefix(pattern, "@")))
		if err != nil {
			return nil, fmt.Errorf("invalid tag pattern '%s': %w", pattern, err)
		}
		f.tags = append(f.tags, g)
	}
	return f, nil
}

// Match reports whether s passes the filter: its title matches and, when
// tag patterns are set, at least one of its tags matches one of them.
func (f *Filter) Match(s Scenario) bool {
	if f == nil {
		return true
	}
	if f.title != nil && !f.title.Match(strings.ToLower(s.Title)) {
		return false
	}
	if len(f.tags) == 0 {
		return true
	}
	for _, tag := range s.Tags {
		tag = strings.ToLower(strings.TrimPrefix(tag, "@"))
		for _, pattern := range f.tags {
			if pattern.Match(tag) {
				return true
			}
		}
	}
	return false
}
