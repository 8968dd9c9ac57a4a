// Package uuid generates and parses run identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates time-ordered UUIDv7 run IDs.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewRawID returns a UUIDv7 or the generation error.
func (Generator) NewRawID() (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate uuid7: %w", err)
	}
	return id, nil
}

// NewRunID returns a UUIDv7, falling back to a random v4 if the clock-based
// generator fails.
func (g Generator) NewRunID() uuid.UUID {
	id, err := g.NewRawID()
	if err != nil {
		return uuid.New()
	}
	return id
}

// Parse validates a textual run ID, rejecting the nil UUID.
func Parse(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse run id: %w", err)
	}
	if id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("parse run id: nil uuid")
	}
	return id, nil
}
