package llm

import (
	"context"
	"errors"
)

// ErrProviderUnavailable marks every way the upstream completion call can
// fail: network errors, non-success statuses, missing credentials, malformed
// responses, timeouts. Callers are expected to recover from it rather than
// surface it.
var ErrProviderUnavailable = errors.New("llm: provider unavailable")

// Turn is one role/content pair of the ordered history replayed to the model.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Gateway abstracts the external language-model completion call. It performs
// no retries; retry policy belongs to the caller so it stays uniform across
// providers.
type Gateway interface {
	Complete(ctx context.Context, history []Turn) (string, error)
}
