package inventoryhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/RadiaWorks/ScanGate/internal/integrations/inventory"
	"github.com/pkg/errors"
)

type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
}

func New(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9100"
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpc: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type sendReq struct {
	Serial string         `json:"serial"`
	Meta   map[string]any `json:"meta,omitempty"`
}

type sendResp struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (c *Client) Send(ctx context.Context, serial string, meta map[string]any) (inventory.Result, error) {
	body, err := json.Marshal(sendReq{Serial: serial, Meta: meta})
	if err != nil {
		return inventory.Result{}, errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/devices/sold", bytes.NewReader(body))
	if err != nil {
		return inventory.Result{}, errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return inventory.Result{}, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return inventory.Result{}, fmt.Errorf("inventory http %d", resp.StatusCode)
	}

	var r sendResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return inventory.Result{}, errors.Wrap(err, "decode")
	}

	return inventory.Result{
		Success: r.Status == "ok",
		Message: r.Message,
	}, nil
}
