package queue

import (
	"context"
	"encoding/json"
)

// Job defines a queue job handler.
type Job interface {
	// Name returns the unique identifier of the job.
	Name() string

	// Type returns the type of message that the job handles.
	Type() string

	// Handle processes the raw message payload. Errors marked with Permanent
	// skip the remaining retries.
	Handle(ctx context.Context, payload json.RawMessage) error
}
