// Package plan builds and validates rename plans: the complete, reviewable
// set of text edits a symbol rename requires across a project, plus the
// warnings and conflicts that qualify it.
package plan

import (
	"time"

	"resym/internal/analysis"
	"resym/internal/parse"
)

// State is the lifecycle position of a plan. A plan is only ever applied
// from StateReady; a rejected plan carries its conflicts and stays inert.
type State string

const (
	StateCollecting State = "collecting"
	StateValidating State = "validating"
	StateReady      State = "ready"
	StateRejected   State = "rejected"
	StateApplied    State = "applied"
	StateFailed     State = "failed"
)

// Edit replaces one span of one file with new text. Edits within a file
// are stored in descending offset order so application never shifts the
// spans of edits still pending.
type Edit struct {
	Path    string     `json:"path"`
	Span    parse.Span `json:"span"`
	NewText string     `json:"new_text"`
}

type WarningKind string

const (
	WarnDynamicAccess      WarningKind = "dynamic-access"
	WarnOpaqueWildcard     WarningKind = "opaque-wildcard"
	WarnHeuristicAttribute WarningKind = "heuristic-attribute"
	WarnIncompleteAnalysis WarningKind = "incomplete-analysis"
)

// Warning flags a site the rename cannot verify. Warnings never block
// application unless strict mode escalates them.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Path    string      `json:"path"`
	Span    parse.Span  `json:"span"`
	Message string      `json:"message"`
}

// Conflict is a site where applying the rename would change program
// behavior. Any conflict rejects the whole plan.
type Conflict struct {
	Path    string     `json:"path"`
	Span    parse.Span `json:"span"`
	Message string     `json:"message"`
}

// MentionSite is a string or comment occurrence of the old name,
// surfaced for manual review and never edited.
type MentionSite struct {
	Path    string           `json:"path"`
	Span    parse.Span       `json:"span"`
	Class   parse.TokenClass `json:"class"`
	Mention analysis.Mention `json:"-"`
}

// Plan is one validated rename.
type Plan struct {
	ID        string    `json:"id"`
	OldName   string    `json:"old_name"`
	NewName   string    `json:"new_name"`
	State     State     `json:"state"`
	CreatedAt time.Time `json:"created_at"`

	Edits     []Edit        `json:"edits"`
	Warnings  []Warning     `json:"warnings,omitempty"`
	Conflicts []Conflict    `json:"conflicts,omitempty"`
	Mentions  []MentionSite `json:"mentions,omitempty"`
}

// Files returns the distinct paths the plan touches, in the order their
// first edit appears.
func (p *Plan) Files() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range p.Edits {
		if !seen[e.Path] {
			seen[e.Path] = true
			out = append(out, e.Path)
		}
	}
	return out
}

// EditsFor returns the plan's edits for one path, already in descending
// offset order.
func (p *Plan) EditsFor(path string) []Edit {
	var out []Edit
	for _, e := range p.Edits {
		if e.Path == path {
			out = append(out, e)
		}
	}
	return out
}
