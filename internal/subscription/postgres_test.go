package subscription

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestPostgres connects to DOORBELL_TEST_DATABASE_URL and empties the
// subscriptions table. The test is skipped when the variable is unset.
func openTestPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("DOORBELL_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("DOORBELL_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := OpenPostgres(ctx, url)
	require.NoError(t, err)
	_, err = s.pool.Exec(ctx, `TRUNCATE subscriptions RESTART IDENTITY`)
	require.NoError(t, err)
	return s
}

func TestPostgresStore(t *testing.T) {
	storeContract(t, openTestPostgres(t))
}

func TestPostgresStoreKeepsInsertionOrder(t *testing.T) {
	s := openTestPostgres(t)
	defer s.Close()
	ctx := context.Background()
	for _, e := range []string{"https://e/3", "https://e/1", "https://e/2"} {
		require.NoError(t, s.Create(ctx, sample(e)))
	}
	subs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 3)
	assert.Equal(t, "https://e/3", subs[0].Endpoint)
	assert.Equal(t, "https://e/1", subs[1].Endpoint)
	assert.Equal(t, "https://e/2", subs[2].Endpoint)
}

func TestPostgresStoreRoundTripsDescriptor(t *testing.T) {
	s := openTestPostgres(t)
	defer s.Close()
	ctx := context.Background()

	want := sample("https://push.example.com/x")
	require.NoError(t, s.Create(ctx, want))
	subs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.True(t, subs[0].Equal(want))
	assert.Equal(t, want.Key(), subs[0].Key())
}

func TestOpenPostgresUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := Open(ctx, Options{
		Backend:     BackendPostgres,
		DatabaseURL: "postgres://doorbell@127.0.0.1:1/doorbell?connect_timeout=1",
	})
	assert.ErrorContains(t, err, "ping postgres")
}
