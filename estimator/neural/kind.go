// Package neural estimates pitch from 1024-sample frames with a trained
// network. Two interchangeable model kinds are supported:
//
//   - Precise: a CREPE-style classifier with ~360 pitch bins, 20 cents apart
//   - Lightweight: a SPICE-style regressor with a pitch head and an uncertainty head
//
// Models are plain gonum dense networks loaded from disk and shared through a
// Cache, so each kind is loaded at most once per process.
package neural

import (
	"errors"
	"fmt"
)

// Kind selects a model variant
type Kind string

const (
	Precise     Kind = "precise"
	Lightweight Kind = "lightweight"
)

// ErrUnknownKind is returned for a model kind other than Precise or Lightweight
var ErrUnknownKind = errors.New("unknown model kind")

// Kinds lists the supported model kinds
func Kinds() []Kind {
	return []Kind{Precise, Lightweight}
}

// ParseKind validates a model kind name
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// Valid reports whether k is a supported kind
func (k Kind) Valid() bool {
	return k == Precise || k == Lightweight
}

// Heads returns how many output vectors a model of this kind produces
func (k Kind) Heads() int {
	if k == Lightweight {
		return 2
	}
	return 1
}

func (k Kind) String() string {
	return string(k)
}
