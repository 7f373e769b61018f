//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/hobbytracker/internal/domain"
	"example.com/hobbytracker/internal/persistence"
	"example.com/hobbytracker/internal/runmetrics"
)

func newTestStore(t *testing.T) (*Store, *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("hobbies"),
		postgrescontainer.WithUsername("hobby"),
		postgrescontainer.WithPassword("hobby"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store := NewStore(pool)
	initializer := persistence.NewInitializer(store)
	require.NoError(t, initializer.Ensure(ctx))
	require.NoError(t, store.Migrate(ctx), "migrations must be idempotent")
	return store, pool
}

func syncedRun(externalID int64) domain.LocalRun {
	id := externalID
	return domain.LocalRun{
		DistanceKm:      10.01,
		DurationMinutes: 62,
		TrainingType:    runmetrics.TrainingRodagem,
		Location:        "Strava",
		ExternalID:      &id,
		ExternalName:    "Morning Run",
		Pace:            "05:60/km",
		AverageSpeedKmh: 10.01,
		OccurredAt:      time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC),
	}
}

func TestInsertRunIfAbsentIsAtomic(t *testing.T) {
	store, pool := newTestStore(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := store.InsertRunIfAbsent(ctx, syncedRun(555))
			require.NoError(t, err)
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, created)

	var runs, outboxRows int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM runs WHERE external_id = 555`).Scan(&runs))
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE event_type = 'run.synced'`).Scan(&outboxRows))
	require.Equal(t, 1, runs)
	require.Equal(t, 1, outboxRows)

	found, err := store.FindRunByExternalID(ctx, 555)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, "05:60/km", found.Pace)
	require.Equal(t, runmetrics.TrainingRodagem, found.TrainingType)
}

func TestRecordsLifecycle(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	book, err := store.CreateBook(ctx, domain.Book{Title: "Dom Casmurro", Author: "Machado de Assis", TotalPages: 256, Status: domain.BookReading, UpdatedAt: time.Now().UTC()})
	require.NoError(t, err)

	page, rating := 120, 9
	require.NoError(t, store.UpdateBook(ctx, book.ID, domain.BookUpdate{CurrentPage: &page, Rating: &rating}))
	require.ErrorIs(t, store.UpdateBook(ctx, book.ID+100, domain.BookUpdate{CurrentPage: &page}), domain.ErrRecordNotFound)

	books, err := store.ListBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 1)
	require.Equal(t, 120, books[0].CurrentPage)
	require.Equal(t, 9, *books[0].Rating)

	base := time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := store.CreateRun(ctx, domain.LocalRun{DistanceKm: 5, DurationMinutes: 30, TrainingType: runmetrics.TrainingLongo, OccurredAt: base.Add(time.Duration(i) * time.Hour)})
		require.NoError(t, err)
	}
	first, next, err := store.ListRuns(ctx, nil, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.NotNil(t, next)
	rest, next, err := store.ListRuns(ctx, next, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.Nil(t, next)
	require.True(t, rest[0].OccurredAt.Equal(base))

	require.NoError(t, store.Delete(ctx, domain.KindBooks, book.ID))
	require.ErrorIs(t, store.Delete(ctx, domain.KindBooks, book.ID), domain.ErrRecordNotFound)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
