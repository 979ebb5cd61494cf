package token

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/txn2/pipeline-relay/pkg/apierr"
)

// DefaultCodeTTL is how long a registration code stays redeemable.
const DefaultCodeTTL = time.Hour

// CodeService issues and consumes registration codes.
type CodeService struct {
	store CodeStore
	ttl   time.Duration
	now   func() time.Time
}

// NewCodeService creates a CodeService. A non-positive ttl uses DefaultCodeTTL.
func NewCodeService(store CodeStore, ttl time.Duration) *CodeService {
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	return &CodeService{store: store, ttl: ttl, now: time.Now}
}

// Issue creates a new registration code.
func (c *CodeService) Issue(ctx context.Context, createdBy string) (*RegistrationCode, error) {
	raw, err := Generate()
	if err != nil {
		return nil, err
	}
	now := c.now()
	code := &RegistrationCode{
		Code:      raw,
		CreatedBy: createdBy,
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}
	if err := c.store.InsertRegistrationCode(ctx, code); err != nil {
		return nil, fmt.Errorf("storing registration code: %w", err)
	}
	return code, nil
}

// Consume redeems code for consumer. Unknown, expired and already consumed
// codes all return ErrCodeUnavailable. Storage failures are logged and
// returned as an internal error.
func (c *CodeService) Consume(ctx context.Context, code, consumer string) (*RegistrationCode, error) {
	if code == "" {
		return nil, ErrCodeUnavailable
	}
	rc, err := c.store.ConsumeRegistrationCode(ctx, code, consumer, c.now())
	if err != nil {
		slog.Error("consuming registration code", "consumer", consumer, "error", err)
		return nil, apierr.NewInternal(err)
	}
	if rc == nil {
		return nil, ErrCodeUnavailable
	}
	return rc, nil
}

// Sweep removes expired codes.
func (c *CodeService) Sweep(ctx context.Context) {
	if _, err := c.store.DeleteExpiredRegistrationCodes(ctx, c.now()); err != nil {
		slog.Warn("sweeping registration codes", "error", err)
	}
}
