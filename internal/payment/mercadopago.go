package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultAPIBaseURL is the MercadoPago REST endpoint.
const DefaultAPIBaseURL = "https://api.mercadopago.com"

// PreferenceItem is one line of a checkout preference.
type PreferenceItem struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int64  `json:"unit_price"`
	CurrencyID string `json:"currency_id"`
}

// BackURLs are the storefront pages the provider redirects to after payment.
type BackURLs struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

// PreferenceRequest is the body of a create-preference call.
type PreferenceRequest struct {
	Items             []PreferenceItem `json:"items"`
	BackURLs          BackURLs         `json:"back_urls"`
	AutoReturn        string           `json:"auto_return,omitempty"`
	ExternalReference string           `json:"external_reference"`
	NotificationURL   string           `json:"notification_url,omitempty"`
}

// Preference is the provider's answer: an id and the URL to send the buyer to.
type Preference struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

// PreferenceCreator creates checkout preferences.
type PreferenceCreator interface {
	CreatePreference(ctx context.Context, req *PreferenceRequest) (*Preference, error)
}

// HTTPError is a response from the provider with a non-2xx status. It means the
// request reached the provider and is never retried.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("provider responded %d: %s", e.StatusCode, e.Body)
}

// Client calls the MercadoPago preferences API.
type Client struct {
	baseURL     string
	accessToken string
	timeout     time.Duration
	httpClient  *http.Client
}

// NewClient creates a MercadoPago client. timeout bounds each call.
func NewClient(baseURL, accessToken string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		timeout:     timeout,
		httpClient:  &http.Client{},
	}
}

// CreatePreference posts a checkout preference. The external reference doubles
// as the idempotency key so retried calls do not create duplicates upstream.
func (c *Client) CreatePreference(ctx context.Context, req *PreferenceRequest) (*Preference, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode preference: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/checkout/preferences", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)
	if req.ExternalReference != "" {
		httpReq.Header.Set("X-Idempotency-Key", req.ExternalReference)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var pref Preference
	if err := json.Unmarshal(respBody, &pref); err != nil {
		return nil, fmt.Errorf("invalid preference response: %w", err)
	}
	if pref.ID == "" || (pref.InitPoint == "" && pref.SandboxInitPoint == "") {
		return nil, fmt.Errorf("preference response is missing id or init_point")
	}
	return &pref, nil
}
