package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ariefcatur/go-realtime-shop/internal/orders"
)

// Subscriber is the live feed; *redisx.Bus satisfies it.
type Subscriber interface {
	Subscribe(ctx context.Context, shopID string) (<-chan orders.ChangeBatch, error)
}

// RemoteSource reads snapshots from the HTTP API and the feed from the bus.
// It also carries writes back to the API with the caller's mutation id.
type RemoteSource struct {
	BaseURL string
	ShopID  string
	Role    string
	Bus     Subscriber
	HTTP    *http.Client
}

var _ Source = (*RemoteSource)(nil)

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api %d: %s", e.Status, e.Message)
}

func (s *RemoteSource) client() *http.Client {
	if s.HTTP != nil {
		return s.HTTP
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (s *RemoteSource) Snapshot(ctx context.Context) (orders.Snapshot, error) {
	var snap orders.Snapshot
	err := s.Call(ctx, http.MethodGet, "/shops/"+s.ShopID+"/snapshot", nil, &snap)
	return snap, err
}

func (s *RemoteSource) Subscribe(ctx context.Context) (<-chan orders.ChangeBatch, error) {
	return s.Bus.Subscribe(ctx, s.ShopID)
}

// Call sends body as JSON and decodes the answer into out (either may be nil).
func (s *RemoteSource) Call(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.Role != "" {
		req.Header.Set("X-Role", s.Role)
	}
	if id := orders.MutationID(ctx); id != "" {
		req.Header.Set("X-Mutation-Id", id)
	}

	resp, err := s.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
