// Package plugin defines the contract external applications implement and
// the manager that drives their lifecycle.
package plugin

import (
	"context"

	"deskos/window"
)

// UIHandle is whatever a plugin renders into its window. The core never
// inspects it.
type UIHandle any

// Manifest describes a plugin to the shell.
type Manifest struct {
	Name          string       `json:"name" yaml:"name"`
	Version       string       `json:"version" yaml:"version"`
	Description   string       `json:"description" yaml:"description"`
	PreferredSize *window.Size `json:"preferredSize,omitempty" yaml:"preferred_size,omitempty"`
}

// Plugin is the contract every application satisfies.
type Plugin interface {
	ID() string
	Manifest() Manifest
	Init(ctx context.Context) error
	Render() UIHandle
}

// Optional hooks. The shell checks for them with a type assertion.
type (
	Opener interface {
		OnOpen(ctx context.Context) error
	}
	Closer interface {
		OnClose(ctx context.Context) error
	}
	Minimizer interface {
		OnMinimize(ctx context.Context) error
	}
	Maximizer interface {
		OnMaximize(ctx context.Context) error
	}
	Destroyer interface {
		OnDestroy(ctx context.Context) error
	}
)

// State is a plugin's lifecycle state.
type State int

const (
	Unregistered State = iota
	Registered
	Active
)

func (s State) String() string {
	switch s {
	case Registered:
		return "registered"
	case Active:
		return "active"
	default:
		return "unregistered"
	}
}
