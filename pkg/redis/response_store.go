package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInFlight is returned when another request holds the idempotency key.
var ErrInFlight = errors.New("request with this idempotency key is in progress")

const inFlightMarker = "processing"

// StoredResponse is a replayable HTTP response.
type StoredResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
}

// ResponseStore keeps responses of idempotent requests in Redis. A key is
// first claimed with an in-flight marker, then either completed with the
// response or released so the request can be retried.
type ResponseStore struct {
	prefix    string
	lockTTL   time.Duration
	retention time.Duration
}

var (
	getStoredValue   = Get
	setStoredValue   = Set
	setNXStoredValue = SetNX
	delStoredValue   = Del
)

// NewResponseStore creates a store whose keys live under prefix.
func NewResponseStore(prefix string, lockTTL, retention time.Duration) *ResponseStore {
	return &ResponseStore{prefix: prefix, lockTTL: lockTTL, retention: retention}
}

func (s *ResponseStore) key(scope, id string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, scope, id)
}

// Lookup returns the stored response for (scope, id). It returns (nil, nil)
// when nothing is stored and ErrInFlight while the key is claimed.
func (s *ResponseStore) Lookup(ctx context.Context, scope, id string) (*StoredResponse, error) {
	val, err := getStoredValue(ctx, s.key(scope, id))
	if IsNil(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if val == inFlightMarker {
		return nil, ErrInFlight
	}

	var resp StoredResponse
	if err := json.Unmarshal([]byte(val), &resp); err != nil {
		return nil, fmt.Errorf("decode stored response: %w", err)
	}
	return &resp, nil
}

// Claim marks (scope, id) as in flight. It returns ErrInFlight if the key
// is already claimed or completed.
func (s *ResponseStore) Claim(ctx context.Context, scope, id string) error {
	ok, err := setNXStoredValue(ctx, s.key(scope, id), inFlightMarker, s.lockTTL)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInFlight
	}
	return nil
}

// Complete stores the final response for a claimed key.
func (s *ResponseStore) Complete(ctx context.Context, scope, id string, resp *StoredResponse) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return setStoredValue(ctx, s.key(scope, id), raw, s.retention)
}

// Release drops a claim so the request may be retried.
func (s *ResponseStore) Release(ctx context.Context, scope, id string) error {
	return delStoredValue(ctx, s.key(scope, id))
}
