package gateway

import (
	"context"
	"net/http"
)

type ServiceProxy struct {
	baseURL string
	client  *http.Client
}

func NewServiceProxy(baseURL string, client *http.Client) *ServiceProxy {
	return &ServiceProxy{
		baseURL: baseURL,
		client:  client,
	}
}

func (p *ServiceProxy) ForwardRequest(ctx context.Context, r *http.Request, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, r.Method, p.baseURL+path, r.Body)
	if err != nil {
		return nil, err
	}

	for _, header := range forwardedHeaders {
		if value := r.Header.Get(header); value != "" {
			req.Header.Set(header, value)
		}
	}

	return p.client.Do(req)
}

// forwardedHeaders is the allowlist of headers passed through to backends:
// content negotiation, the authenticated customer identity, and the payment
// provider's webhook signature.
var forwardedHeaders = []string{
	"Content-Type",
	"X-Customer-ID",
	"Provider-Signature",
}
