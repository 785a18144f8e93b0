// Package embedding turns text into fixed-length vectors for the knowledge
// index.
package embedding

import (
	"context"
	"fmt"
)

// Embedder converts text to a vector of exactly Dimension() components.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Failure is returned for any embedding provider error. Message carries the
// provider's own text so operators can see why the call failed.
type Failure struct {
	Provider string
	Message  string
	Err      error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("embedding failed (%s): %s", f.Provider, f.Message)
}

func (f *Failure) Unwrap() error { return f.Err }

// truncate keeps the first dim components. It never pads and never
// re-normalizes.
func truncate(vec []float32, dim int) ([]float32, error) {
	if len(vec) < dim {
		return nil, fmt.Errorf("provider returned %d dimensions, index needs %d", len(vec), dim)
	}
	return vec[:dim:dim], nil
}
