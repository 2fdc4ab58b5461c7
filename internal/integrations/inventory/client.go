package inventory

import "context"

type Result struct {
	Success bool
	Message string
}

// Client pushes sold-device notifications to the external inventory system.
type Client interface {
	Send(ctx context.Context, serial string, meta map[string]any) (Result, error)
}
