package fake

import (
	"context"
	"sync"

	"github.com/RadiaWorks/ScanGate/internal/integrations/inventory"
)

// Client records every Send call; handy in service tests.
type Client struct {
	mu      sync.Mutex
	Serials []string
	Result  inventory.Result
	Err     error
}

func (c *Client) Send(ctx context.Context, serial string, meta map[string]any) (inventory.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Serials = append(c.Serials, serial)
	if c.Err != nil {
		return inventory.Result{}, c.Err
	}
	if c.Result == (inventory.Result{}) {
		return inventory.Result{Success: true, Message: "accepted"}, nil
	}
	return c.Result, nil
}
