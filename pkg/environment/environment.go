// Package environment abstracts where secrets and settings come from, so
// providers can be tested without touching the process environment.
package environment

import (
	"context"
	"os"
)

// Provider resolves named values, typically API keys.
type Provider interface {
	Get(ctx context.Context, name string) (string, error)
}

// OSProvider reads from the process environment.
type OSProvider struct{}

func (OSProvider) Get(_ context.Context, name string) (string, error) {
	return os.Getenv(name), nil
}

// KeyValueProvider serves a fixed map; useful in tests and for layering.
type KeyValueProvider map[string]string

func (p KeyValueProvider) Get(_ context.Context, name string) (string, error) {
	return p[name], nil
}

// MultiProvider returns the first non-empty answer from its children.
type MultiProvider []Provider

func (p MultiProvider) Get(ctx context.Context, name string) (string, error) {
	for _, child := range p {
		v, err := child.Get(ctx, name)
		if err != nil {
			return "", err
		}
		if v != "" {
			return v, nil
		}
	}
	return "", nil
}
