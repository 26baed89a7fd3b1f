package codes

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/evswap/swap-station/internal/db"
	"github.com/evswap/swap-station/internal/models"
)

var (
	ErrCodeNotFound    = errors.New("confirmation code not found")
	ErrCodeExpired     = errors.New("confirmation code expired")
	ErrCodeUnavailable = errors.New("could not generate a unique confirmation code")
)

const (
	codeLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	codeDigits  = "0123456789"

	// maxIssueAttempts bounds the retry loop on code collisions.
	maxIssueAttempts = 5
)

// ConsumeResult is the tagged outcome of a Consume call. Exactly one caller
// per code observes Replay == false; everyone else gets the already-consumed
// binding and must serve the stored transaction instead of re-executing.
type ConsumeResult struct {
	Binding models.ConfirmationCode
	Replay  bool
}

// Registry generates, binds and resolves short-lived confirmation codes.
type Registry struct {
	codes db.CodeCollection
	ttl   time.Duration
}

// NewRegistry creates a code registry with a fixed validity window per code.
func NewRegistry(codes db.CodeCollection, ttl time.Duration) *Registry {
	return &Registry{codes: codes, ttl: ttl}
}

// Generate produces a 6-character code: 3 uppercase letters followed by
// 3 digits, e.g. "ABC123".
func Generate() (string, error) {
	buf := make([]byte, 0, 6)
	for i := 0; i < 3; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeLetters))))
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		buf = append(buf, codeLetters[n.Int64()])
	}
	for i := 0; i < 3; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeDigits))))
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		buf = append(buf, codeDigits[n.Int64()])
	}
	return string(buf), nil
}

// Issue mints a code bound to a booking, retrying a bounded number of times
// when the generated code collides with a live one. Uniqueness among active
// codes is enforced by the storage layer, not by a pre-read.
func (r *Registry) Issue(ctx context.Context, bookingID primitive.ObjectID) (*models.ConfirmationCode, error) {
	now := time.Now().UTC()
	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		value, err := Generate()
		if err != nil {
			return nil, err
		}
		cc := models.ConfirmationCode{
			ID:        primitive.NewObjectID(),
			Code:      value,
			BookingID: bookingID,
			IssuedAt:  now,
			ExpiresAt: now.Add(r.ttl),
			Consumed:  false,
		}
		err = r.codes.InsertCode(ctx, cc)
		if err == nil {
			return &cc, nil
		}
		if !errors.Is(err, db.ErrDuplicate) {
			return nil, fmt.Errorf("issue code: %w", err)
		}
		log.WithField("code", value).Debug("confirmation code collision, retrying")
	}
	return nil, ErrCodeUnavailable
}

// Resolve looks a code up without consuming it.
func (r *Registry) Resolve(ctx context.Context, code string) (*models.ConfirmationCode, error) {
	cc, err := r.codes.FindCode(ctx, code)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	if !cc.Consumed && cc.Expired(time.Now().UTC()) {
		return nil, ErrCodeExpired
	}
	return cc, nil
}

// Consume marks a code consumed exactly once. The first caller to observe the
// unconsumed code gets Replay == false and the pre-consumption binding; any
// concurrent or later caller gets Replay == true with the stored binding.
// An expired, never-consumed code fails with ErrCodeExpired.
func (r *Registry) Consume(ctx context.Context, code string) (*ConsumeResult, error) {
	now := time.Now().UTC()
	cc, err := r.codes.ConsumeCode(ctx, code, now)
	if err == nil {
		return &ConsumeResult{Binding: *cc, Replay: false}, nil
	}
	if !errors.Is(err, db.ErrConflict) {
		return nil, fmt.Errorf("consume code: %w", err)
	}

	// Nothing matched: the code is missing, already consumed, or expired.
	existing, ferr := r.codes.FindCode(ctx, code)
	if ferr != nil {
		if errors.Is(ferr, db.ErrNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, ferr
	}
	if existing.Consumed {
		return &ConsumeResult{Binding: *existing, Replay: true}, nil
	}
	return nil, ErrCodeExpired
}
