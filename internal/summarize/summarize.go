package summarize

import "context"

// Summarizer produces a markdown summary of a transcript. Both providers
// return the same normalized shape; provider-specific response handling stays
// at this boundary.
type Summarizer interface {
	Name() string
	Summarize(ctx context.Context, transcript string) (string, error)
}
