package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPClient_ProductDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/products/v4/search/RC0402FR-0710KL/productdetails", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
  "Product": {
    "ManufacturerProductNumber": "RC0402FR-0710KL",
    "Manufacturer": {"Name": "YAGEO"},
    "Description": {"ProductDescription": "RES 10K OHM 1% 1/16W 0402"},
    "Parameters": [
      {"ParameterText": "Package", "ValueText": "0402"},
      {"ParameterText": "Resistance", "ValueText": "10 kOhms"}
    ]
  }
}`))
	}))
	defer srv.Close()

	c := newWithHTTPClient(srv.URL, srv.Client())
	p, err := c.ProductDetails(context.Background(), "RC0402FR-0710KL")
	require.NoError(t, err)
	require.Equal(t, "YAGEO", p.Manufacturer)
	require.Equal(t, "10 kOhms", p.NominalValue)
	require.Equal(t, "RES 10K OHM 1% 1/16W 0402", p.Description)
}

func TestHTTPClient_ProductDetails_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newWithHTTPClient(srv.URL, srv.Client())
	_, err := c.ProductDetails(context.Background(), "MISSING")
	require.Error(t, err)
	require.Contains(t, err.Error(), "404")
}
