// Package artifact captures failure evidence for scenarios and writes the
// run report.
//
// On a failed scenario the Capturer saves a full-page screenshot and a
// cleaned DOM snapshot under <results>/screenshots and registers both in a
// Registry. The ReportWriter turns the registry and scenario results into
// results.json and summary.md.
package artifact

import (
	"sort"
	"sync"
	"time"
)

// Kind identifies what an artifact file contains.
type Kind string

const (
	KindScreenshot Kind = "screenshot"
	KindDOM        Kind = "dom"
)

// Artifact is a file produced for a scenario.
type Artifact struct {
	Kind      Kind      `json:"kind"`
	Scenario  string    `json:"scenario"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

// Registry collects artifacts from concurrently running scenarios.
type Registry struct {
	mu        sync.Mutex
	artifacts []Artifact
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers an artifact.
func (r *Registry) Add(a Artifact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifacts = append(r.artifacts, a)
}

// List returns all artifacts ordered by creation time.
func (r *Registry) List() []Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]Artifact(nil), r.artifacts...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// ForScenario returns the artifacts registered for one scenario title.
func (r *Registry) ForScenario(title string) []Artifact {
	var out []Artifact
	for _, a := range r.List() {
		if a.Scenario == title {
			out = append(out, a)
		}
	}
	return out
}
