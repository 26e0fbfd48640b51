// Package client is the admin side of the order service: the API client, the
// realtime reconnection manager, the background poller and the offline outbox.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ariefcatur/go-guesthouse-orders/internal/orders"
	"github.com/sony/gobreaker/v2"
)

// ErrUnavailable marks failures where the server could not be reached or did
// not answer sensibly. Mutations failing this way are worth queueing.
var ErrUnavailable = errors.New("order service unavailable")

var ErrUnauthorized = errors.New("caller id rejected")

const headerCallerID = "X-Caller-Id"

type API struct {
	base   string
	caller string
	hc     *http.Client
	cb     *gobreaker.CircuitBreaker[*http.Response]
}

func NewAPI(baseURL, callerID string, hc *http.Client) *API {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "orders-api",
		MaxRequests: 1,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 3 },
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("breaker %s: %s -> %s", name, from, to)
		},
	})
	return &API{base: strings.TrimRight(baseURL, "/"), caller: callerID, hc: hc, cb: cb}
}

// Origin is the base URL the realtime endpoint is derived from.
func (a *API) Origin() string { return a.base }

type apiError struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.base+path, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.caller != "" {
		req.Header.Set(headerCallerID, a.caller)
	}

	resp, err := a.cb.Execute(func() (*http.Response, error) {
		resp, err := a.hc.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return nil, fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, bytes.TrimSpace(b))
		}
		return resp, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var e apiError
	_ = json.NewDecoder(resp.Body).Decode(&e)
	switch resp.StatusCode {
	case http.StatusNotFound:
		return orders.ErrNotFound
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", orders.ErrStatusRegression, e.Error)
	case http.StatusBadRequest:
		if len(e.Fields) > 0 {
			return &orders.ValidationError{Fields: e.Fields}
		}
		if e.Error == orders.ErrEmptyPatch.Error() {
			return orders.ErrEmptyPatch
		}
	}
	return fmt.Errorf("api: %d %s", resp.StatusCode, e.Error)
}

func (a *API) List(ctx context.Context) ([]orders.Order, error) {
	var out []orders.Order
	err := a.do(ctx, http.MethodGet, "/orders", nil, &out)
	return out, err
}

func (a *API) FindByContact(ctx context.Context, contact string) ([]orders.Order, error) {
	var out []orders.Order
	err := a.do(ctx, http.MethodGet, "/orders?contact="+url.QueryEscape(contact), nil, &out)
	return out, err
}

func (a *API) Get(ctx context.Context, id int64) (orders.Order, error) {
	var out orders.Order
	err := a.do(ctx, http.MethodGet, "/orders/"+strconv.FormatInt(id, 10), nil, &out)
	return out, err
}

func (a *API) Create(ctx context.Context, d orders.Draft) (orders.Order, error) {
	var out orders.Order
	err := a.do(ctx, http.MethodPost, "/orders", d, &out)
	return out, err
}

func (a *API) UpdateFields(ctx context.Context, id int64, p orders.Patch) (orders.Order, error) {
	var out orders.Order
	err := a.do(ctx, http.MethodPatch, "/orders/"+strconv.FormatInt(id, 10)+"/status", p, &out)
	return out, err
}

// ListSince fetches orders created after since.
func (a *API) ListSince(ctx context.Context, since time.Time) (orders.Batch, error) {
	var out orders.Batch
	q := url.Values{"since": {since.UTC().Format(time.RFC3339Nano)}}
	err := a.do(ctx, http.MethodGet, "/orders/new?"+q.Encode(), nil, &out)
	return out, err
}
