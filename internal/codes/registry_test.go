package codes

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/evswap/swap-station/internal/db"
	"github.com/evswap/swap-station/internal/models"
)

// fakeCodeCollection is an in-memory CodeCollection with the same uniqueness
// and consume semantics as the Mongo implementation.
type fakeCodeCollection struct {
	mu    sync.Mutex
	codes map[string]models.ConfirmationCode
	// forceDuplicates makes the next n inserts fail with ErrDuplicate.
	forceDuplicates int
}

func newFakeCodeCollection() *fakeCodeCollection {
	return &fakeCodeCollection{codes: make(map[string]models.ConfirmationCode)}
}

func (f *fakeCodeCollection) InsertCode(_ context.Context, code models.ConfirmationCode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.forceDuplicates > 0 {
		f.forceDuplicates--
		return db.ErrDuplicate
	}
	if existing, ok := f.codes[code.Code]; ok && !existing.Consumed && !existing.Expired(time.Now().UTC()) {
		return db.ErrDuplicate
	}
	f.codes[code.Code] = code
	return nil
}

func (f *fakeCodeCollection) FindCode(_ context.Context, code string) (*models.ConfirmationCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cc, ok := f.codes[code]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &cc, nil
}

func (f *fakeCodeCollection) ConsumeCode(_ context.Context, code string, now time.Time) (*models.ConfirmationCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cc, ok := f.codes[code]
	if !ok || cc.Consumed || cc.Expired(now) {
		return nil, db.ErrConflict
	}
	before := cc
	cc.Consumed = true
	cc.ConsumedAt = &now
	f.codes[code] = cc
	return &before, nil
}

func TestGenerateFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^[A-Z]{3}[0-9]{3}$`)
	for i := 0; i < 50; i++ {
		code, err := Generate()
		assert.NoError(t, err)
		assert.Regexp(t, pattern, code)
	}
}

func TestIssueRetriesOnCollision(t *testing.T) {
	store := newFakeCodeCollection()
	store.forceDuplicates = 2
	registry := NewRegistry(store, time.Hour)

	cc, err := registry.Issue(context.Background(), primitive.NewObjectID())
	assert.NoError(t, err)
	assert.NotNil(t, cc)
	assert.Len(t, cc.Code, 6)
	assert.False(t, cc.Consumed)
}

func TestIssueGivesUpAfterRepeatedCollisions(t *testing.T) {
	store := newFakeCodeCollection()
	store.forceDuplicates = maxIssueAttempts
	registry := NewRegistry(store, time.Hour)

	cc, err := registry.Issue(context.Background(), primitive.NewObjectID())
	assert.ErrorIs(t, err, ErrCodeUnavailable)
	assert.Nil(t, cc)
}

func TestConsumeExactlyOnce(t *testing.T) {
	store := newFakeCodeCollection()
	registry := NewRegistry(store, time.Hour)
	bookingID := primitive.NewObjectID()

	cc, err := registry.Issue(context.Background(), bookingID)
	assert.NoError(t, err)

	first, err := registry.Consume(context.Background(), cc.Code)
	assert.NoError(t, err)
	assert.False(t, first.Replay)
	assert.Equal(t, bookingID, first.Binding.BookingID)

	second, err := registry.Consume(context.Background(), cc.Code)
	assert.NoError(t, err)
	assert.True(t, second.Replay)
	assert.Equal(t, bookingID, second.Binding.BookingID)
}

func TestConsumeConcurrentSingleWinner(t *testing.T) {
	store := newFakeCodeCollection()
	registry := NewRegistry(store, time.Hour)

	cc, err := registry.Issue(context.Background(), primitive.NewObjectID())
	assert.NoError(t, err)

	const callers = 20
	results := make(chan *ConsumeResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := registry.Consume(context.Background(), cc.Code)
			assert.NoError(t, err)
			results <- res
		}()
	}
	wg.Wait()
	close(results)

	winners := 0
	for res := range results {
		if !res.Replay {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}

func TestConsumeMissingCode(t *testing.T) {
	registry := NewRegistry(newFakeCodeCollection(), time.Hour)

	res, err := registry.Consume(context.Background(), "ZZZ999")
	assert.ErrorIs(t, err, ErrCodeNotFound)
	assert.Nil(t, res)
}

func TestConsumeExpiredCode(t *testing.T) {
	store := newFakeCodeCollection()
	registry := NewRegistry(store, -time.Minute) // already expired at issue

	cc, err := registry.Issue(context.Background(), primitive.NewObjectID())
	assert.NoError(t, err)

	res, err := registry.Consume(context.Background(), cc.Code)
	assert.ErrorIs(t, err, ErrCodeExpired)
	assert.Nil(t, res)
}

func TestResolveDoesNotConsume(t *testing.T) {
	store := newFakeCodeCollection()
	registry := NewRegistry(store, time.Hour)

	cc, err := registry.Issue(context.Background(), primitive.NewObjectID())
	assert.NoError(t, err)

	resolved, err := registry.Resolve(context.Background(), cc.Code)
	assert.NoError(t, err)
	assert.False(t, resolved.Consumed)

	res, err := registry.Consume(context.Background(), cc.Code)
	assert.NoError(t, err)
	assert.False(t, res.Replay)
}

func TestResolveExpiredCode(t *testing.T) {
	store := newFakeCodeCollection()
	registry := NewRegistry(store, -time.Minute)

	cc, err := registry.Issue(context.Background(), primitive.NewObjectID())
	assert.NoError(t, err)

	resolved, err := registry.Resolve(context.Background(), cc.Code)
	assert.ErrorIs(t, err, ErrCodeExpired)
	assert.Nil(t, resolved)
}
