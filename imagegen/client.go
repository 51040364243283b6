package imagegen

import (
	"context"

	"go_batchgen/credentials"
)

// Client issues exactly one generation call per Generate.
//
// Implementations must not retry, back off or rotate tokens: the batch
// worker owns all of that. Every failure is reported through the returned
// Outcome, never as a panic or a separate error value.
type Client interface {
	Generate(ctx context.Context, req Request, token credentials.Token) Outcome
}

// ClientFunc adapts a plain function to Client.
type ClientFunc func(ctx context.Context, req Request, token credentials.Token) Outcome

// Generate calls f.
func (f ClientFunc) Generate(ctx context.Context, req Request, token credentials.Token) Outcome {
	return f(ctx, req, token)
}
