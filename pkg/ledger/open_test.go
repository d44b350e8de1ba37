package ledger

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marinova/oceanmeter/pkg/plans"
)

func TestOpenSQLite_ConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.DB().Close() })

	require.NoError(t, store.Migrate(ctx))
	assert.Equal(t, "sqlite3", store.Dialect())

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Create(ctx, New("u", now)))

	// five callers race for five free credits; every spend must land
	var wg sync.WaitGroup
	for i := 0; i < plans.FreeSeedCredits; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, "u", func(l *Ledger) error {
				l.UsageCredits--
				l.UsageHistory = append(l.UsageHistory, UsageEntry{Feature: plans.FeatureChat, UsedAt: now})
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	l, err := store.Get(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 0, l.UsageCredits)
	assert.Len(t, l.UsageHistory, plans.FreeSeedCredits)
}

func TestOpenPostgres_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := OpenPostgres(ctx, "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1", 4)
	assert.Error(t, err)
}
