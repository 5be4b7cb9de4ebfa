package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRequest() *PreferenceRequest {
	return &PreferenceRequest{
		Items: []PreferenceItem{
			{ID: "1", Title: "Sillón Nórdico 3 cuerpos", Quantity: 1, UnitPrice: 185000, CurrencyID: "ARS"},
		},
		BackURLs: BackURLs{
			Success: "https://zm.example/datos-entrega?order_id=ZM-1718000000123-A1B2C3",
			Failure: "https://zm.example/carrito",
			Pending: "https://zm.example/datos-entrega?order_id=ZM-1718000000123-A1B2C3",
		},
		AutoReturn:        "approved",
		ExternalReference: "ZM-1718000000123-A1B2C3",
	}
}

func TestCreatePreferenceSuccess(t *testing.T) {
	var got PreferenceRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/checkout/preferences", r.URL.Path)
		assert.Equal(t, "Bearer TEST-token", r.Header.Get("Authorization"))
		assert.Equal(t, "ZM-1718000000123-A1B2C3", r.Header.Get("X-Idempotency-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"123-abc","init_point":"https://mp.example/init","sandbox_init_point":"https://sandbox.mp.example/init"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "TEST-token", time.Second)
	pref, err := c.CreatePreference(context.Background(), sampleRequest())

	require.NoError(t, err)
	assert.Equal(t, "123-abc", pref.ID)
	assert.Equal(t, "https://mp.example/init", pref.InitPoint)
	assert.Equal(t, "approved", got.AutoReturn)
	assert.Equal(t, int64(185000), got.Items[0].UnitPrice)
}

func TestCreatePreferenceHTTPErrorIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"invalid items"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "TEST-token", time.Second)
	_, err := c.CreatePreference(context.Background(), sampleRequest())

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
	assert.Equal(t, Fatal, Classify(err))
}

func TestCreatePreferenceMissingFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":""}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "TEST-token", time.Second)
	_, err := c.CreatePreference(context.Background(), sampleRequest())
	assert.Error(t, err)
	assert.Equal(t, Fatal, Classify(err))
}

func TestCreatePreferenceUnreachableIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(url, "TEST-token", time.Second)
	_, err := c.CreatePreference(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.Equal(t, Retry, Classify(err))
}

func TestCreatePreferenceTimeoutIsRetryable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(srv.URL, "TEST-token", 50*time.Millisecond)
	_, err := c.CreatePreference(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.Equal(t, Retry, Classify(err))
}
