package persistence

import (
	"context"
	"fmt"
	"sync"
)

// Migrator brings a store's schema up to date. Migrate must be idempotent.
type Migrator interface {
	Migrate(ctx context.Context) error
}

// Initializer runs schema setup once per process. It is owned by the process
// lifecycle and passed to whoever needs the schema, never held in a package
// variable.
type Initializer struct {
	mu          sync.Mutex
	initialized bool
	target      Migrator
}

// NewInitializer constructs an Initializer for target.
func NewInitializer(target Migrator) *Initializer {
	return &Initializer{target: target}
}

// Ensure migrates the target unless that already succeeded. A failed attempt
// leaves the Initializer uninitialized so a later call retries.
func (i *Initializer) Ensure(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.initialized {
		return nil
	}
	if err := i.target.Migrate(ctx); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	i.initialized = true
	return nil
}

// Initialized reports whether Ensure has succeeded.
func (i *Initializer) Initialized() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.initialized
}
