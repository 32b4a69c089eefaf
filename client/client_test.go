package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ValentinKolb/sKV/lib/smartstore"
	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestClient spins up a real server over a fresh database and returns
// a client pointed at it.
func newTestClient(t *testing.T) *Client {
	t.Helper()

	opts := smartstore.DefaultOptions(t.TempDir())
	opts.BufferSize = 1
	opts.SweepInterval = time.Hour
	db, err := smartstore.New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	srv, err := server.NewServer(db, server.DefaultConfig(), zap.NewNop())
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	c, err := New(Config{BaseURL: ts.URL})
	require.NoError(t, err)
	return c
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestKeyRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Create(ctx, "user:1", store.NewStringValue("alice"), 0))

	err := c.Create(ctx, "user:1", store.NewStringValue("bob"), 0)
	require.Error(t, err)
	assert.True(t, IsConflict(err))

	value, found, err := c.Get(ctx, "user:1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, store.TypeString, value.Kind)
	assert.Equal(t, "alice", value.Text())

	// Set updates existing keys
	require.NoError(t, c.Set(ctx, "user:1", store.NewStringValue("carol"), 0))
	value, found, err = c.Get(ctx, "user:1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "carol", value.Text())

	// and creates missing ones
	require.NoError(t, c.Set(ctx, "user:2", store.NewStringValue("dave"), 0))

	keys, err := c.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"user:1", "user:2"}, keys)

	deleted, err := c.Delete(ctx, "user:1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = c.Delete(ctx, "user:1")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, found, err = c.Get(ctx, "user:1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTypedValues(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Create(ctx, "pi", store.NewNumberValue(3.25), 0))

	doc, err := store.NewJSONValue([]byte(`{"name":"alice","tags":["a","b"]}`))
	require.NoError(t, err)
	require.NoError(t, c.Create(ctx, "doc", doc, 0))

	value, found, err := c.Get(ctx, "pi")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, store.TypeNumber, value.Kind)
	n, err := value.Number()
	require.NoError(t, err)
	assert.Equal(t, 3.25, n)

	value, found, err = c.Get(ctx, "doc")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, store.TypeJSON, value.Kind)
	assert.JSONEq(t, `{"name":"alice","tags":["a","b"]}`, value.Text())
}

func TestStatsAndHealth(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Create(ctx, "a", store.NewStringValue("1"), 0))
	require.NoError(t, c.Create(ctx, "b", store.NewStringValue("2"), 0))

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Store.TotalKeys)

	health, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.True(t, health.Database.Connected)
	assert.Equal(t, 2, health.Database.TotalKeys)
}

func TestManagementSurface(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	res, err := c.TrainCache(ctx, 0)
	require.NoError(t, err)
	assert.False(t, res.Success)

	count, err := c.OptimizeCache(ctx)
	require.NoError(t, err)
	assert.True(t, count.Success)
	assert.Zero(t, count.Count)

	hot, err := c.HotKeys(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, hot)

	_, err = c.ClearCache(ctx)
	require.NoError(t, err)

	anomalies, err := c.Anomalies(ctx, "", false)
	require.NoError(t, err)
	assert.Empty(t, anomalies)

	detected, err := c.RunAnomalyCheck(ctx)
	require.NoError(t, err)
	assert.Empty(t, detected)

	err = c.ResolveAnomaly(ctx, "does-not-exist")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	require.NoError(t, c.CreateCheckpoint(ctx))
	logStats, err := c.RecoveryStats(ctx)
	require.NoError(t, err)
	assert.True(t, logStats.CheckpointExists)
}

func TestArchiveOverClient(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Create(ctx, "cold:1", store.NewStringValue("v"), 0))

	res, err := c.ArchiveKeys(ctx, []string{"cold:1"}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)

	archived, err := c.ArchivedKeys(ctx)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, "cold:1", archived[0].Key)

	_, found, err := c.Get(ctx, "cold:1")
	require.NoError(t, err)
	assert.False(t, found)

	// nothing is cold without a trained model
	res, err = c.ArchiveColdKeys(ctx, 0, 0)
	require.NoError(t, err)
	assert.Zero(t, res.Count)

	res, err = c.RestoreKeys(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)

	value, found, err := c.Get(ctx, "cold:1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "v", value.Text())
}

func TestErrorHelpers(t *testing.T) {
	assert.True(t, IsNotFound(&APIError{StatusCode: http.StatusNotFound}))
	assert.True(t, IsConflict(&APIError{StatusCode: http.StatusConflict}))
	assert.True(t, IsBusy(&APIError{StatusCode: http.StatusServiceUnavailable}))
	assert.False(t, IsNotFound(nil))
	assert.False(t, IsBusy(assert.AnError))
}
