package shell

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/sKV/lib/smartstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestShell opens a database in a temp directory and returns a shell
// writing to an in-memory buffer.
func newTestShell(t *testing.T) (*shell, *bytes.Buffer) {
	t.Helper()

	opts := smartstore.DefaultOptions(t.TempDir())
	opts.BufferSize = 1
	opts.SweepInterval = time.Hour
	db, err := smartstore.New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var out bytes.Buffer
	return newShell(db, &out), &out
}

func TestPutGetDeleteCommands(t *testing.T) {
	sh, out := newTestShell(t)

	sh.dispatch("put user:1 alice")
	assert.Contains(t, out.String(), "stored: user:1 = alice")

	out.Reset()
	sh.dispatch("get user:1")
	assert.Contains(t, out.String(), "user:1 = alice")
	assert.Contains(t, out.String(), "latency:")

	out.Reset()
	sh.dispatch("delete user:1")
	assert.Contains(t, out.String(), "deleted: user:1")

	out.Reset()
	sh.dispatch("get user:1")
	assert.Contains(t, out.String(), `key "user:1" not found`)

	out.Reset()
	sh.dispatch("delete user:1")
	assert.Contains(t, out.String(), `key "user:1" not found`)
}

func TestPutTypedValues(t *testing.T) {
	sh, out := newTestShell(t)

	sh.dispatch("put pi 3.14 type=number")
	assert.Contains(t, out.String(), "stored: pi = 3.14")

	out.Reset()
	sh.dispatch(`put cfg {"debug":true} type=json`)
	assert.Contains(t, out.String(), "stored: cfg")

	out.Reset()
	sh.dispatch("put bad value type=matrix")
	assert.Contains(t, out.String(), "error:")
}

func TestPutWithTTL(t *testing.T) {
	sh, out := newTestShell(t)

	sh.dispatch("put session abc ttl=120")
	assert.Contains(t, out.String(), "ttl: 2m0s")

	out.Reset()
	sh.dispatch("put session abc ttl=soon")
	assert.Contains(t, out.String(), "ttl must be an integer")

	out.Reset()
	sh.dispatch("put session abc frequency=2")
	assert.Contains(t, out.String(), "unknown parameter")
}

func TestKeysPatternFilter(t *testing.T) {
	sh, out := newTestShell(t)

	sh.dispatch("put user:1 a")
	sh.dispatch("put user:2 b")
	sh.dispatch("put other c")

	out.Reset()
	sh.dispatch("keys")
	assert.Contains(t, out.String(), "keys (3 total):")

	out.Reset()
	sh.dispatch("keys user*")
	assert.Contains(t, out.String(), "keys (2 total):")
	assert.Contains(t, out.String(), "user:1")
	assert.Contains(t, out.String(), "user:2")
	assert.NotContains(t, out.String(), "other")

	out.Reset()
	sh.dispatch("keys nomatch")
	assert.Contains(t, out.String(), "no keys found")
}

func TestInfoCommand(t *testing.T) {
	sh, out := newTestShell(t)

	sh.dispatch("put user:1 alice ttl=3600")
	sh.dispatch("get user:1")

	out.Reset()
	sh.dispatch("info user:1")
	output := out.String()
	assert.Contains(t, output, "information for key: user:1")
	assert.Contains(t, output, "value: alice")
	assert.Contains(t, output, "type: string")
	assert.Contains(t, output, "ttl: 1h0m0s")
	assert.Contains(t, output, "expires:")

	out.Reset()
	sh.dispatch("info missing")
	assert.Contains(t, out.String(), `key "missing" not found`)
}

func TestArchiveAndRestoreCommands(t *testing.T) {
	sh, out := newTestShell(t)

	sh.dispatch("put old:1 v1")
	sh.dispatch("put live:1 v2")

	out.Reset()
	sh.dispatch("archive old:1")
	assert.Contains(t, out.String(), "archived 1 keys")

	out.Reset()
	sh.dispatch("archive_list")
	assert.Contains(t, out.String(), "archived keys (1 total):")
	assert.Contains(t, out.String(), "old:1")

	out.Reset()
	sh.dispatch("get old:1")
	assert.Contains(t, out.String(), "not found")

	out.Reset()
	sh.dispatch("restore all")
	assert.Contains(t, out.String(), "restored 1 keys from archive")

	out.Reset()
	sh.dispatch("get old:1")
	assert.Contains(t, out.String(), "old:1 = v1")

	out.Reset()
	sh.dispatch("archive")
	assert.Contains(t, out.String(), "usage:")
}

func TestMaintenanceCommands(t *testing.T) {
	sh, out := newTestShell(t)

	sh.dispatch("put a 1")

	out.Reset()
	sh.dispatch("cache_train")
	assert.Contains(t, out.String(), "training failed (insufficient data)")

	out.Reset()
	sh.dispatch("cache_optimize")
	assert.Contains(t, out.String(), "pre-loaded 0 hot keys")

	out.Reset()
	sh.dispatch("cache_hot_keys")
	assert.Contains(t, out.String(), "no predictions available")

	out.Reset()
	sh.dispatch("cache_stats")
	assert.Contains(t, out.String(), "model trained: no")

	out.Reset()
	sh.dispatch("anomalies")
	assert.Contains(t, out.String(), "no anomalies detected")

	out.Reset()
	sh.dispatch("anomalies catastrophic")
	assert.Contains(t, out.String(), "unknown severity")

	out.Reset()
	sh.dispatch("anomaly_check")
	assert.Contains(t, out.String(), "no new anomalies detected")

	out.Reset()
	sh.dispatch("checkpoint")
	assert.Contains(t, out.String(), "checkpoint created")

	out.Reset()
	sh.dispatch("recovery_stats")
	assert.Contains(t, out.String(), "checkpoint exists: yes")

	out.Reset()
	sh.dispatch("stats")
	assert.Contains(t, out.String(), "total keys: 1")
}

func TestClearAsksForConfirmation(t *testing.T) {
	sh, out := newTestShell(t)

	input := strings.Join([]string{
		"put a 1",
		"put b 2",
		"clear",
		"no",
		"clear",
		"YES",
		"keys",
		"exit",
	}, "\n")

	sh.loop(strings.NewReader(input))

	output := out.String()
	assert.Contains(t, output, "operation cancelled")
	assert.Contains(t, output, "cleared 2 keys")
	assert.Contains(t, output, "no keys found")
}

func TestClearWithoutInputIsCancelled(t *testing.T) {
	sh, out := newTestShell(t)

	sh.dispatch("put a 1")
	out.Reset()

	// no scanner attached, the confirmation read fails
	sh.dispatch("clear")
	assert.Contains(t, out.String(), "operation cancelled")
}

func TestDispatchControlCommands(t *testing.T) {
	sh, out := newTestShell(t)

	assert.False(t, sh.dispatch(""))
	assert.False(t, sh.dispatch("help"))
	assert.Contains(t, out.String(), "Key-value commands:")

	out.Reset()
	assert.False(t, sh.dispatch("frobnicate"))
	assert.Contains(t, out.String(), "unknown command")

	assert.True(t, sh.dispatch("exit"))
	assert.True(t, sh.dispatch("quit"))
}

func TestLoopExitsOnEOF(t *testing.T) {
	sh, out := newTestShell(t)

	sh.loop(strings.NewReader("put a 1\nget a\n"))

	output := out.String()
	assert.Contains(t, output, prompt)
	assert.Contains(t, output, "a = 1")
}
