package persistence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/hobbytracker/internal/domain"
)

func TestCursorRoundTrip(t *testing.T) {
	original := &domain.Cursor{OccurredAt: time.Date(2026, 3, 1, 7, 0, 0, 123, time.UTC), ID: 42}

	decoded, err := DecodeCursor(EncodeCursor(original))
	require.NoError(t, err)
	require.True(t, original.OccurredAt.Equal(decoded.OccurredAt))
	require.Equal(t, original.ID, decoded.ID)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	cursor, err := DecodeCursor("")
	require.NoError(t, err)
	require.Nil(t, cursor)

	for _, token := range []string{"!!!", "bm8tc2VwYXJhdG9y", "MjAyNi0wMy0wMXwtMQ"} {
		_, err := DecodeCursor(token)
		var validation *domain.ValidationError
		require.ErrorAs(t, err, &validation, token)
	}
}

type countingMigrator struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (m *countingMigrator) Migrate(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail {
		return errors.New("database unavailable")
	}
	return nil
}

func TestInitializerRunsOnce(t *testing.T) {
	migrator := &countingMigrator{}
	initializer := NewInitializer(migrator)
	require.False(t, initializer.Initialized())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, initializer.Ensure(context.Background()))
		}()
	}
	wg.Wait()

	require.True(t, initializer.Initialized())
	require.Equal(t, 1, migrator.calls)
}

func TestInitializerRetriesAfterFailure(t *testing.T) {
	migrator := &countingMigrator{fail: true}
	initializer := NewInitializer(migrator)

	require.ErrorContains(t, initializer.Ensure(context.Background()), "database unavailable")
	require.False(t, initializer.Initialized())

	migrator.fail = false
	require.NoError(t, initializer.Ensure(context.Background()))
	require.True(t, initializer.Initialized())
	require.Equal(t, 2, migrator.calls)
}
