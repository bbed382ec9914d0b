package agent

import (
	"encoding/json"
	"fmt"

	"github.com/codeatlas/codeatlas/pkg/chat"
)

// Action is one step of the agent's alphabet. The concrete types mirror the
// function-calling surface: path, code and proc gather evidence, answer
// (wire name "none") terminates the loop.
type Action interface {
	isAction()
}

// Query is the user-provided question that opens an exchange.
type Query struct {
	Query string
}

// Path searches pathnames.
type Path struct {
	Query string `json:"query"`
}

// Code searches file contents semantically.
type Code struct {
	Query string `json:"query"`
}

// Proc reads files and extracts relevant line ranges. Paths are indices
// into the agent's known-path list.
type Proc struct {
	Query string `json:"query"`
	Paths []int  `json:"paths"`
}

// Answer synthesizes the final answer from the given path indices.
type Answer struct {
	Paths []int `json:"paths"`
}

func (Query) isAction()  {}
func (Path) isAction()   {}
func (Code) isAction()   {}
func (Proc) isAction()   {}
func (Answer) isAction() {}

// DecodeAction parses a function call returned by the model into the next
// action.
func DecodeAction(call chat.FunctionCall) (Action, error) {
	raw := []byte(call.Arguments)
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	switch call.Name {
	case "path":
		var a Path
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("parsing path arguments: %w", err)
		}
		return a, nil
	case "code":
		var a Code
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("parsing code arguments: %w", err)
		}
		return a, nil
	case "proc":
		var a Proc
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("parsing proc arguments: %w", err)
		}
		return a, nil
	case "none":
		var a Answer
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("parsing answer arguments: %w", err)
		}
		return a, nil
	}
	return nil, fmt.Errorf("unknown function %q", call.Name)
}
