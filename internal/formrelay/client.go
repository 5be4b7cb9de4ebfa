package formrelay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"storefront/internal/util"

	"go.uber.org/zap"
)

// Submission sources
const (
	SourceContact         = "contact"
	SourceCheckout        = "checkout"
	SourceDeliveryDetails = "delivery_details"
)

// ErrNotConfigured is returned when no relay URL is set.
var ErrNotConfigured = errors.New("form relay is not configured")

// Submission is one message forwarded to the form relay service.
type Submission struct {
	Source  string            `json:"source"`
	Subject string            `json:"subject"`
	Name    string            `json:"name,omitempty"`
	Email   string            `json:"email,omitempty"`
	Phone   string            `json:"phone,omitempty"`
	Message string            `json:"message"`
	OrderID string            `json:"orderId,omitempty"`
	Urgent  bool              `json:"urgent,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Submitter forwards submissions to the relay.
type Submitter interface {
	Submit(ctx context.Context, s *Submission) error
}

// Client posts submissions to a form relay endpoint as JSON
type Client struct {
	url        string
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a form relay client. An empty url yields a client whose
// Submit always fails with ErrNotConfigured.
func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		url:        url,
		timeout:    timeout,
		httpClient: &http.Client{},
		logger:     util.GetLogger(),
	}
}

// Submit posts s and waits for the relay to accept it.
func (c *Client) Submit(ctx context.Context, s *Submission) error {
	if c.url == "" {
		return ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("form relay request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("form relay responded %d", resp.StatusCode)
	}

	c.logger.Debug("Form submission relayed",
		zap.String("source", s.Source),
		zap.String("order_id", s.OrderID))
	return nil
}
