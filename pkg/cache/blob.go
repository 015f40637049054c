package cache

import (
	"context"
	"fmt"
)

// Blob is a single durable object that holds a whole snapshot.
type Blob interface {
	// Read returns the current content. A missing object reads as empty.
	Read(ctx context.Context) ([]byte, error)
	// Update replaces the content with merge(current). Implementations serialize
	// Update against other writers and may call merge more than once.
	Update(ctx context.Context, merge func(current []byte) ([]byte, error), durable bool) error
	fmt.Stringer
}
