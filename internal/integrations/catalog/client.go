package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/oauth2/clientcredentials"
)

// Product is the slice of catalog data the component pipeline cares about.
type Product struct {
	PartNumber   string
	Manufacturer string
	Description  string
	NominalValue string
}

type Client interface {
	ProductDetails(ctx context.Context, partNumber string) (Product, error)
}

// HTTPClient talks to a DigiKey-style catalog API using client-credentials
// OAuth2. The oauth2 transport caches and refreshes the token by itself.
type HTTPClient struct {
	baseURL string
	httpc   *http.Client
}

func New(baseURL, clientID, clientSecret string) *HTTPClient {
	if baseURL == "" {
		baseURL = "https://api.digikey.com"
	}
	cfg := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     baseURL + "/v1/oauth2/token",
	}
	httpc := cfg.Client(context.Background())
	httpc.Timeout = 10 * time.Second
	return &HTTPClient{
		baseURL: baseURL,
		httpc:   httpc,
	}
}

// newWithHTTPClient skips the oauth2 layer; used by tests.
func newWithHTTPClient(baseURL string, httpc *http.Client) *HTTPClient {
	return &HTTPClient{baseURL: baseURL, httpc: httpc}
}

type productResp struct {
	Product struct {
		ManufacturerProductNumber string `json:"ManufacturerProductNumber"`
		Manufacturer              struct {
			Name string `json:"Name"`
		} `json:"Manufacturer"`
		Description struct {
			ProductDescription string `json:"ProductDescription"`
		} `json:"Description"`
		Parameters []struct {
			ParameterText string `json:"ParameterText"`
			ValueText     string `json:"ValueText"`
		} `json:"Parameters"`
	} `json:"Product"`
}

func (c *HTTPClient) ProductDetails(ctx context.Context, partNumber string) (Product, error) {
	u := c.baseURL + "/products/v4/search/" + url.PathEscape(partNumber) + "/productdetails"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Product{}, errors.Wrap(err, "new request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return Product{}, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return Product{}, fmt.Errorf("catalog http %d", resp.StatusCode)
	}

	var r productResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return Product{}, errors.Wrap(err, "decode")
	}

	p := Product{
		PartNumber:   r.Product.ManufacturerProductNumber,
		Manufacturer: r.Product.Manufacturer.Name,
		Description:  r.Product.Description.ProductDescription,
	}
	for _, param := range r.Product.Parameters {
		if param.ParameterText == "Resistance" || param.ParameterText == "Capacitance" {
			p.NominalValue = param.ValueText
			break
		}
	}
	return p, nil
}
