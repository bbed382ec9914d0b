// Package agent runs the evidence-gathering loop: a bounded state machine
// that drives an LLM over the code/path/proc/answer tool surface until it
// produces a grounded answer.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/codeatlas/codeatlas/pkg/chat"
	"github.com/codeatlas/codeatlas/pkg/model/provider"
	"github.com/codeatlas/codeatlas/pkg/semantic"
	"github.com/codeatlas/codeatlas/pkg/textstore"
	"github.com/codeatlas/codeatlas/pkg/tools"
)

const (
	// answerMaxHistorySize bounds how many past exchanges are rendered
	// into the prompt.
	answerMaxHistorySize = 3

	// functionCallInstruction is the literal sentinel that keeps the model
	// calling functions instead of answering inline.
	functionCallInstruction = "Call a function. Do not answer"

	// hidden replaces compacted message content.
	hidden = "[HIDDEN]"

	// defaultLLMTimeout is the per-call deadline for model requests.
	defaultLLMTimeout = 2 * time.Minute
)

// Deps are the process-wide collaborators an agent drives. All of them are
// read-mostly and safe for concurrent use across requests.
type Deps struct {
	LLM       provider.Provider
	Semantic  *semantic.Semantic
	TextStore textstore.Store

	// RepoName scopes vector searches; IndexName addresses the full-text
	// index.
	RepoName  string
	IndexName string

	// MaxContextTokens and TokenHeadroom bound history compaction.
	MaxContextTokens int
	TokenHeadroom    int

	// LLMTimeout overrides the per-call deadline when non-zero.
	LLMTimeout time.Duration

	// Analytics receives lifecycle events; nil disables emission.
	Analytics func(event string, queryID uuid.UUID)
}

// Agent is the per-request loop state. Not safe for concurrent use; one
// request owns one agent.
type Agent struct {
	deps Deps

	Exchanges []Exchange
	QueryID   uuid.UUID

	// complete flips when the loop terminates with an answer; the Close
	// path emits a cancellation event otherwise.
	complete bool
}

// New starts an agent for one query.
func New(deps Deps, query string, queryID uuid.UUID) *Agent {
	if deps.MaxContextTokens == 0 {
		deps.MaxContextTokens = 8192
	}
	if deps.TokenHeadroom == 0 {
		deps.TokenHeadroom = 2048
	}
	if deps.LLMTimeout == 0 {
		deps.LLMTimeout = defaultLLMTimeout
	}

	return &Agent{
		deps:      deps,
		Exchanges: []Exchange{{Query: query}},
		QueryID:   queryID,
	}
}

// Complete marks the request answered, disarming the cancellation event.
func (a *Agent) Complete() {
	a.complete = true
}

// Close emits a cancellation analytics event when the agent is dropped
// without completing. Correctness does not depend on it.
func (a *Agent) Close() {
	if !a.complete && a.deps.Analytics != nil {
		a.deps.Analytics("agent_cancelled", a.QueryID)
	}
}

// LastExchange returns the exchange in progress.
func (a *Agent) LastExchange() *Exchange {
	return &a.Exchanges[len(a.Exchanges)-1]
}

// Update applies an update to the exchange in progress.
func (a *Agent) Update(u Update) {
	a.LastExchange().Apply(u)
}

// Paths lists every path seen across all exchanges, in insertion order.
func (a *Agent) Paths() []string {
	var out []string
	for i := range a.Exchanges {
		out = append(out, a.Exchanges[i].Paths...)
	}
	return out
}

// PathAlias returns the index of a path in the known-path list, inserting
// it on first use. Insertion is idempotent: a path keeps the alias it was
// first assigned.
func (a *Agent) PathAlias(path string) int {
	for i, p := range a.Paths() {
		if p == path {
			return i
		}
	}
	alias := len(a.Paths())
	last := a.LastExchange()
	last.Paths = append(last.Paths, path)
	return alias
}

// PathByAlias resolves an alias back to its path.
func (a *Agent) PathByAlias(alias int) (string, bool) {
	paths := a.Paths()
	if alias < 0 || alias >= len(paths) {
		return "", false
	}
	return paths[alias], true
}

// Step executes one action and asks the model for the next one. A nil next
// action means the loop has terminated with an answer.
func (a *Agent) Step(ctx context.Context, action Action) (Action, error) {
	slog.Debug("agent step", "query_id", a.QueryID, "action", fmt.Sprintf("%T", action))

	switch act := action.(type) {
	case Query:
		// the opening action carries no tool work

	case Answer:
		if err := a.answer(ctx, act.Paths); err != nil {
			return nil, fmt.Errorf("answer action failed: %w", err)
		}
		return nil, nil

	case Path:
		if _, err := a.PathSearch(ctx, act.Query); err != nil {
			return nil, err
		}

	case Code:
		if _, err := a.CodeSearch(ctx, act.Query); err != nil {
			return nil, err
		}

	case Proc:
		if _, err := a.ProcessFiles(ctx, act.Query, act.Paths); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unknown action %T", action)
	}

	messages := []chat.Message{chat.System(systemPrompt(a.Paths()))}
	history, err := a.history()
	if err != nil {
		return nil, err
	}
	messages = append(messages, history...)

	trimmed, err := TrimHistory(messages, a.deps.MaxContextTokens, a.deps.TokenHeadroom)
	if err != nil {
		return nil, err
	}

	functions := functionTools(len(a.Paths()) > 0)

	response, err := a.chatWithTimeout(ctx, trimmed, functions)
	if err != nil {
		return nil, err
	}

	if response.FunctionCall == nil {
		// one repair attempt: re-ask with the sentinel tightened
		slog.Debug("model answered without a function call, repairing", "query_id", a.QueryID)
		repair := append(trimmed, chat.User(functionCallInstruction))
		response, err = a.chatWithTimeout(ctx, repair, functions)
		if err != nil {
			return nil, err
		}
		if response.FunctionCall == nil {
			return nil, &ParseError{Err: errors.New("model did not call a function")}
		}
	}

	next, err := DecodeAction(*response.FunctionCall)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	return next, nil
}

// Run drives Step until the loop terminates.
func (a *Agent) Run(ctx context.Context) error {
	var action Action = Query{Query: a.LastExchange().Query}

	for {
		next, err := a.Step(ctx, action)
		if err != nil {
			return err
		}
		if next == nil {
			a.Complete()
			return nil
		}
		action = next
	}
}

func (a *Agent) chatWithTimeout(ctx context.Context, messages []chat.Message, functions []tools.Tool) (chat.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, a.deps.LLMTimeout)
	defer cancel()

	response, err := a.deps.LLM.CreateChatCompletion(ctx, messages, functions)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return chat.Message{}, &TimeoutError{Duration: a.deps.LLMTimeout}
		}
		return chat.Message{}, fmt.Errorf("model call failed: %w", err)
	}
	return response, nil
}

// history renders the most recent exchanges as messages, including the
// intermediate function calls and their returns.
func (a *Agent) history() ([]chat.Message, error) {
	start := len(a.Exchanges) - answerMaxHistorySize
	if start < 0 {
		start = 0
	}

	var out []chat.Message
	for _, e := range a.Exchanges[start:] {
		if e.Query == "" {
			return nil, errors.New("exchange has no query")
		}

		out = append(out, chat.User(e.Query), chat.User(functionCallInstruction))

		for _, s := range e.SearchSteps {
			args, err := stepArguments(a, s)
			if err != nil {
				return nil, err
			}
			out = append(out,
				chat.AssistantCall(chat.FunctionCall{Name: string(s.Kind), Arguments: args}),
				chat.FunctionReturn(string(s.Kind), s.Response),
				chat.User(functionCallInstruction),
			)
		}

		if answer, _, ok := e.AnswerSummary(); ok {
			out = append(out, chat.FunctionReturn("none", EncodeSummarized(answer)))
		}
	}
	return out, nil
}

func stepArguments(a *Agent, s SearchStep) (string, error) {
	switch s.Kind {
	case StepPath, StepCode:
		raw, err := json.Marshal(map[string]string{"query": s.Query})
		return string(raw), err
	case StepProc:
		aliases := make([]int, 0, len(s.Paths))
		for _, p := range s.Paths {
			aliases = append(aliases, a.PathAlias(p))
		}
		raw, err := json.Marshal(map[string]any{"query": s.Query, "paths": aliases})
		return string(raw), err
	}
	return "", fmt.Errorf("unknown step kind %q", s.Kind)
}

// TrimHistory hides message contents front to back until the estimated
// token usage leaves the configured headroom. System messages and user
// queries are never hidden. When nothing hideable remains and the budget is
// still not met, the step fails.
func TrimHistory(messages []chat.Message, maxContextTokens, headroom int) ([]chat.Message, error) {
	out := make([]chat.Message, len(messages))
	copy(out, messages)

	for chat.EstimateTokens(out) > maxContextTokens-headroom {
		hid := false
		for i := range out {
			if out[i].IsHideable() && out[i].Content != hidden {
				out[i].Content = hidden
				hid = true
				break
			}
		}
		if !hid {
			return nil, ErrBudgetExhausted
		}
	}

	return out, nil
}
