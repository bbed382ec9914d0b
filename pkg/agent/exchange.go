package agent

import (
	"fmt"
	"strings"
)

// StepKind names a tool invocation recorded in an exchange.
type StepKind string

const (
	StepPath StepKind = "path"
	StepCode StepKind = "code"
	StepProc StepKind = "proc"
)

// SearchStep is one tool invocation with its arguments and rendered
// response. Paths is set for proc steps only.
type SearchStep struct {
	Kind     StepKind `json:"kind"`
	Query    string   `json:"query"`
	Paths    []string `json:"paths,omitempty"`
	Response string   `json:"response"`
}

// CodeChunk is a snippet surfaced to the model, addressed by a path alias.
type CodeChunk struct {
	Path      string `json:"path"`
	Alias     int    `json:"alias"`
	Snippet   string `json:"snippet"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// IsEmpty reports whether the chunk carries no text.
func (c CodeChunk) IsEmpty() bool {
	return strings.TrimSpace(c.Snippet) == ""
}

func (c CodeChunk) String() string {
	return fmt.Sprintf("### path alias: %d, path: %s ###\n%s", c.Alias, c.Path, c.Snippet)
}

// Exchange is one user query together with every tool step taken for it and
// the final answer.
type Exchange struct {
	Query       string       `json:"query"`
	SearchSteps []SearchStep `json:"search_steps"`
	CodeChunks  []CodeChunk  `json:"code_chunks"`

	// Paths lists, in order, the paths first seen during this exchange. A
	// path's alias is its index in the concatenation of all exchanges' Paths
	// (Agent.Paths).
	Paths []string `json:"paths"`

	// Answer is the rendered article; Conclusion its [^summary] footnote.
	Answer     string `json:"answer,omitempty"`
	Conclusion string `json:"conclusion,omitempty"`
}

// Update mutates an exchange. The variants mirror the step lifecycle:
// a tool records a StartStep when dispatched and a ReplaceStep carrying the
// response when done, so a retried step restarts cleanly from its start
// marker.
type Update interface {
	apply(e *Exchange)
}

// StartStep registers a fresh step.
type StartStep struct {
	Step SearchStep
}

func (u StartStep) apply(e *Exchange) {
	e.SearchSteps = append(e.SearchSteps, u.Step)
}

// ReplaceStep swaps the most recent step of the same kind, making retries
// idempotent.
type ReplaceStep struct {
	Step SearchStep
}

func (u ReplaceStep) apply(e *Exchange) {
	for i := len(e.SearchSteps) - 1; i >= 0; i-- {
		if e.SearchSteps[i].Kind == u.Step.Kind {
			e.SearchSteps[i] = u.Step
			return
		}
	}
	e.SearchSteps = append(e.SearchSteps, u.Step)
}

// SetAnswer records the final article and its conclusion.
type SetAnswer struct {
	Answer     string
	Conclusion string
}

func (u SetAnswer) apply(e *Exchange) {
	e.Answer = u.Answer
	e.Conclusion = u.Conclusion
}

// Apply applies an update to the exchange.
func (e *Exchange) Apply(u Update) {
	u.apply(e)
}

// AnswerSummary returns the answer with its conclusion, if answered.
func (e *Exchange) AnswerSummary() (string, string, bool) {
	if e.Answer == "" {
		return "", "", false
	}
	return e.Answer, e.Conclusion, true
}
