package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/isaacriehm/memory-mcp/pkg/config"
	"github.com/isaacriehm/memory-mcp/pkg/identity"
)

const testEmbedDim = 1536

// testVector returns a deterministic unit-ish vector of testEmbedDim
// dimensions with fill as every component, matching the column width the
// embedded migration hardcodes.
func testVector(fill float64) string {
	vec := make([]float64, testEmbedDim)
	for i := range vec {
		vec[i] = fill
	}
	return identity.VectorLiteral(vec)
}

// newTestStore boots a disposable pgvector+ltree-enabled Postgres container,
// applies the embedded migrations through New, and registers cleanup.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "pgvector/pgvector:pg16",
		tcpostgres.WithDatabase("memories_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg := config.Config{
		DatabaseURL:     dsn,
		PGPoolMin:       1,
		PGPoolMax:       4,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Hour,
		EmbedDim:        testEmbedDim,
	}
	st, err := New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return st
}

func TestStoreInsertAndGetMemoryRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	id := uuid.New()
	now := time.Now().UTC().Truncate(time.Microsecond)
	err := st.InsertSection(ctx, st.Pool(), NewSection{
		ID:            id,
		Content:       "The user's favorite color is blue.",
		VectorLiteral: testVector(0.1),
		CategoryPath:  "profile.preferences",
		Metadata:      map[string]any{"volatility_class": "low"},
	}, now)
	require.NoError(t, err)

	mem, err := st.GetMemory(ctx, st.Pool(), id)
	require.NoError(t, err)
	require.Equal(t, "The user's favorite color is blue.", mem.Content)
	require.Equal(t, "profile.preferences", mem.CategoryPath)
	require.Nil(t, mem.SupersedesID)
	require.Nil(t, mem.ArchivedAt)
}

func TestStoreGetMemoryNotFound(t *testing.T) {
	st := newTestStore(t)
	_, err := st.GetMemory(context.Background(), st.Pool(), uuid.New())
	require.Error(t, err)
}

func TestStoreContextSetGetDeleteRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.SetContext(ctx, st.Pool(), "session.goal", "ship the release", "session", time.Hour))

	entry, err := st.GetContext(ctx, st.Pool(), "session.goal")
	require.NoError(t, err)
	require.Equal(t, "ship the release", entry.Value)
	require.Equal(t, "session", entry.Scope)

	deleted, err := st.DeleteContext(ctx, st.Pool(), "session.goal")
	require.NoError(t, err)
	require.True(t, deleted)

	_, err = st.GetContext(ctx, st.Pool(), "session.goal")
	require.Error(t, err)
}

func TestStoreExtendContextTTLCapsAtMax(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.SetContext(ctx, st.Pool(), "k", "v", "session", time.Hour))
	newExpiry, err := st.ExtendContextTTL(ctx, st.Pool(), "k", 1000*time.Hour, 2*time.Hour)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(2*time.Hour), newExpiry, 5*time.Second)
}

func TestStoreHealthReportsHealthy(t *testing.T) {
	st := newTestStore(t)
	health, err := st.Health(context.Background())
	require.NoError(t, err)
	require.Equal(t, "healthy", health.Status)
}
