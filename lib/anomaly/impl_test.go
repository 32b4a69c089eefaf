package anomaly

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ValentinKolb/sKV/lib/codec"
	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/lib/store/fstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordN feeds n identical samples into the detector.
func recordN(d IDetector, n int, success bool, latency time.Duration) {
	for i := 0; i < n; i++ {
		d.RecordAccess(success, latency)
	}
}

// seedStore opens a store over a handcrafted data file, so entries can
// carry arbitrary access counts and creation times.
func seedStore(t *testing.T, entries map[string]*store.Entry) store.IStore {
	t.Helper()
	dir := t.TempDir()

	f, err := os.Create(filepath.Join(dir, fstore.DataFileName))
	require.NoError(t, err)
	require.NoError(t, codec.NewJSONCodec().EncodeEntries(f, entries))
	require.NoError(t, f.Close())

	opts := fstore.DefaultOptions(dir)
	opts.SweepInterval = time.Hour
	s, err := fstore.New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// entryWith builds an entry with a fixed access count and age.
func entryWith(key string, count uint64, age time.Duration) *store.Entry {
	e := store.NewEntry(key, store.NewStringValue("payload of "+key), 0)
	e.AccessCount = count
	e.CreatedAt = time.Now().Add(-age)
	return e
}

// population builds n background entries with the given access count.
func population(n int, count uint64) map[string]*store.Entry {
	entries := make(map[string]*store.Entry, n)
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("key-%02d", i)
		entries[key] = entryWith(key, count, time.Hour)
	}
	return entries
}

// --------------------------------------------------------------------------
// Access spike
// --------------------------------------------------------------------------

func TestAccessSpikeNeedsTwentySamples(t *testing.T) {
	d := New(DefaultOptions())

	// 19 samples with an extreme recent slice still yield nothing
	recordN(d, 9, false, 0)
	recordN(d, 10, true, 0)

	assert.Nil(t, d.CheckAccessSpike())
	assert.Empty(t, d.GetAnomalies("", true))
}

func TestAccessSpikeHighSeverity(t *testing.T) {
	d := New(DefaultOptions())

	// baseline of 41 samples with a single success, then 10 successes:
	// the recent mean sits more than 6 standard deviations above the
	// baseline
	d.RecordAccess(true, 0)
	recordN(d, 40, false, 0)
	recordN(d, 10, true, 0)

	a := d.CheckAccessSpike()
	require.NotNil(t, a)
	assert.Equal(t, TypeSpike, a.Type)
	assert.Equal(t, SeverityHigh, a.Severity)
	assert.Equal(t, "access_rate", a.Metric)
	assert.Empty(t, a.Key)
	assert.NotEmpty(t, a.ID)
	assert.NotEmpty(t, a.Description)
	assert.False(t, a.Resolved)
	assert.WithinDuration(t, time.Now(), a.Timestamp, time.Minute)

	assert.Len(t, d.GetAnomalies("", true), 1)
}

func TestAccessSpikeMediumSeverity(t *testing.T) {
	d := New(DefaultOptions())

	// baseline of 25 samples with two successes, then 10 successes:
	// roughly 3.4 standard deviations above the baseline
	recordN(d, 2, true, 0)
	recordN(d, 23, false, 0)
	recordN(d, 10, true, 0)

	a := d.CheckAccessSpike()
	require.NotNil(t, a)
	assert.Equal(t, SeverityMedium, a.Severity)
}

func TestAccessSpikeZeroVarianceYieldsNothing(t *testing.T) {
	d := New(DefaultOptions())
	recordN(d, 30, true, 0)

	assert.Nil(t, d.CheckAccessSpike())
}

// --------------------------------------------------------------------------
// Error rate
// --------------------------------------------------------------------------

func TestErrorRateNeedsTenSamples(t *testing.T) {
	d := New(DefaultOptions())
	recordN(d, 9, false, 0)

	assert.Nil(t, d.CheckErrorRate())
}

func TestErrorRateSeverities(t *testing.T) {
	t.Run("CleanTrafficYieldsNothing", func(t *testing.T) {
		d := New(DefaultOptions())
		recordN(d, 10, true, 0)
		assert.Nil(t, d.CheckErrorRate())
	})

	t.Run("TenPercentIsMedium", func(t *testing.T) {
		d := New(DefaultOptions())
		recordN(d, 9, true, 0)
		d.RecordAccess(false, 0)

		a := d.CheckErrorRate()
		require.NotNil(t, a)
		assert.Equal(t, TypeErrorRate, a.Type)
		assert.Equal(t, SeverityMedium, a.Severity)
		assert.Equal(t, "error_rate", a.Metric)
	})

	t.Run("ThirtyPercentIsHigh", func(t *testing.T) {
		d := New(DefaultOptions())
		recordN(d, 7, true, 0)
		recordN(d, 3, false, 0)

		a := d.CheckErrorRate()
		require.NotNil(t, a)
		assert.Equal(t, SeverityHigh, a.Severity)
	})
}

func TestErrorRateOnlySeesRecentSamples(t *testing.T) {
	d := New(DefaultOptions())

	// an old error burst followed by 10 clean operations is forgotten
	recordN(d, 10, false, 0)
	recordN(d, 10, true, 0)

	assert.Nil(t, d.CheckErrorRate())
}

// --------------------------------------------------------------------------
// Latency spike
// --------------------------------------------------------------------------

func TestLatencySpikeSeverities(t *testing.T) {
	// alternating 10ms/11ms baseline: mean 10.5ms, deviation 0.5ms
	baseline := func(d IDetector) {
		for i := 0; i < 15; i++ {
			d.RecordAccess(true, 10*time.Millisecond)
			d.RecordAccess(true, 11*time.Millisecond)
		}
	}

	t.Run("SevenDeviationsIsHigh", func(t *testing.T) {
		d := New(DefaultOptions())
		baseline(d)
		recordN(d, 10, true, 14*time.Millisecond)

		a := d.CheckLatencySpike()
		require.NotNil(t, a)
		assert.Equal(t, TypeLatency, a.Type)
		assert.Equal(t, SeverityHigh, a.Severity)
		assert.Equal(t, "latency", a.Metric)
	})

	t.Run("FourDeviationsIsMedium", func(t *testing.T) {
		d := New(DefaultOptions())
		baseline(d)
		recordN(d, 10, true, 12500*time.Microsecond)

		a := d.CheckLatencySpike()
		require.NotNil(t, a)
		assert.Equal(t, SeverityMedium, a.Severity)
	})

	t.Run("SteadyLatencyYieldsNothing", func(t *testing.T) {
		d := New(DefaultOptions())
		recordN(d, 40, true, 10*time.Millisecond)
		assert.Nil(t, d.CheckLatencySpike())
	})
}

func TestLatencyWindowIgnoresZeroLatencies(t *testing.T) {
	d := New(DefaultOptions())

	// only 15 of the 45 samples carry a latency, the latency window
	// stays under the 20 sample minimum
	recordN(d, 15, true, 10*time.Millisecond)
	recordN(d, 30, true, 0)

	assert.Nil(t, d.CheckLatencySpike())
}

// --------------------------------------------------------------------------
// Key level checks
// --------------------------------------------------------------------------

func TestKeyAnomaliesHotKey(t *testing.T) {
	entries := population(19, 2)
	entries["bursty"] = entryWith("bursty", 50, time.Hour)
	s := seedStore(t, entries)

	d := New(DefaultOptions())
	detected, err := d.CheckKeyAnomalies(s)
	require.NoError(t, err)

	require.Len(t, detected, 1)
	assert.Equal(t, TypeHotKey, detected[0].Type)
	assert.Equal(t, SeverityLow, detected[0].Severity)
	assert.Equal(t, "bursty", detected[0].Key)
	assert.Equal(t, "access_count", detected[0].Metric)
}

func TestKeyAnomaliesColdKey(t *testing.T) {
	entries := population(19, 2)
	entries["stale"] = entryWith("stale", 0, 8*24*time.Hour)
	s := seedStore(t, entries)

	d := New(DefaultOptions())
	detected, err := d.CheckKeyAnomalies(s)
	require.NoError(t, err)

	require.Len(t, detected, 1)
	assert.Equal(t, TypeColdKey, detected[0].Type)
	assert.Equal(t, SeverityLow, detected[0].Severity)
	assert.Equal(t, "stale", detected[0].Key)
	assert.Contains(t, detected[0].Description, "never accessed")
}

func TestKeyAnomaliesHotAndCold(t *testing.T) {
	entries := population(19, 2)
	entries["bursty"] = entryWith("bursty", 50, time.Hour)
	entries["stale"] = entryWith("stale", 0, 8*24*time.Hour)
	s := seedStore(t, entries)

	d := New(DefaultOptions())
	detected, err := d.CheckKeyAnomalies(s)
	require.NoError(t, err)

	require.Len(t, detected, 2)
	types := map[string]AnomalyType{}
	for _, a := range detected {
		types[a.Key] = a.Type
	}
	assert.Equal(t, TypeHotKey, types["bursty"])
	assert.Equal(t, TypeColdKey, types["stale"])
}

func TestKeyAnomaliesNeedMoreThanTenEntries(t *testing.T) {
	// ten entries, one of them clearly stale: still below the gate
	entries := population(9, 2)
	entries["stale"] = entryWith("stale", 0, 8*24*time.Hour)
	s := seedStore(t, entries)

	d := New(DefaultOptions())
	detected, err := d.CheckKeyAnomalies(s)
	require.NoError(t, err)
	assert.Empty(t, detected)

	// the eleventh entry opens the gate
	entries = population(10, 2)
	entries["stale"] = entryWith("stale", 0, 8*24*time.Hour)
	s = seedStore(t, entries)

	detected, err = d.CheckKeyAnomalies(s)
	require.NoError(t, err)
	require.Len(t, detected, 1)
	assert.Equal(t, TypeColdKey, detected[0].Type)
}

func TestKeyAnomaliesUniformPopulationYieldsNothing(t *testing.T) {
	s := seedStore(t, population(12, 5))

	d := New(DefaultOptions())
	detected, err := d.CheckKeyAnomalies(s)
	require.NoError(t, err)
	assert.Empty(t, detected)
}

// --------------------------------------------------------------------------
// Full check and record management
// --------------------------------------------------------------------------

func TestRunFullCheckCombinesDetections(t *testing.T) {
	entries := population(19, 2)
	entries["bursty"] = entryWith("bursty", 50, time.Hour)
	s := seedStore(t, entries)

	d := New(DefaultOptions())
	recordN(d, 7, true, 0)
	recordN(d, 3, false, 0)

	detected, err := d.RunFullCheck(s)
	require.NoError(t, err)

	require.Len(t, detected, 2)
	assert.Equal(t, TypeErrorRate, detected[0].Type)
	assert.Equal(t, TypeHotKey, detected[1].Type)

	// both detections are on the persistent record
	assert.Len(t, d.GetAnomalies("", true), 2)
}

func TestGetAnomaliesFiltersAndSorts(t *testing.T) {
	d := New(DefaultOptions())

	recordN(d, 7, true, 0)
	recordN(d, 3, false, 0)

	// the window is not consumed by a check, so repeated checks keep
	// emitting as long as the condition holds
	first := d.CheckErrorRate()
	require.NotNil(t, first)
	time.Sleep(3 * time.Millisecond)
	second := d.CheckErrorRate()
	require.NotNil(t, second)
	time.Sleep(3 * time.Millisecond)

	// dilute the window down to one recent error: medium severity
	recordN(d, 9, true, 0)
	third := d.CheckErrorRate()
	require.NotNil(t, third)
	assert.Equal(t, SeverityMedium, third.Severity)

	all := d.GetAnomalies("", true)
	require.Len(t, all, 3)
	assert.Equal(t, third.ID, all[0].ID, "newest first")
	assert.Equal(t, second.ID, all[1].ID)
	assert.Equal(t, first.ID, all[2].ID)

	high := d.GetAnomalies(SeverityHigh, true)
	require.Len(t, high, 2)
	assert.Equal(t, second.ID, high[0].ID)
	assert.Equal(t, first.ID, high[1].ID)
}

func TestResolveAnomaly(t *testing.T) {
	d := New(DefaultOptions())
	recordN(d, 7, true, 0)
	recordN(d, 3, false, 0)

	a := d.CheckErrorRate()
	require.NotNil(t, a)

	assert.False(t, d.ResolveAnomaly("no-such-id"))
	assert.True(t, d.ResolveAnomaly(a.ID))

	// resolved records disappear from the default view but stay on the
	// audit trail
	assert.Empty(t, d.GetAnomalies("", true))
	all := d.GetAnomalies("", false)
	require.Len(t, all, 1)
	assert.True(t, all[0].Resolved)

	// resolving twice still reports success
	assert.True(t, d.ResolveAnomaly(a.ID))
}

func TestDetectorStats(t *testing.T) {
	d := New(DefaultOptions())
	assert.Equal(t, DetectorStats{}, d.DetectorStats())

	recordN(d, 7, true, 0)
	recordN(d, 3, false, 0)
	first := d.CheckErrorRate() // high
	require.NotNil(t, first)

	recordN(d, 9, true, 0)
	third := d.CheckErrorRate() // medium
	require.NotNil(t, third)

	stats := d.DetectorStats()
	assert.Equal(t, 2, stats.TotalAnomalies)
	assert.Equal(t, 2, stats.UnresolvedAnomalies)
	assert.Equal(t, 1, stats.HighSeverity)
	assert.Equal(t, 1, stats.MediumSeverity)
	assert.Equal(t, 0, stats.LowSeverity)
	assert.Equal(t, 2, stats.RecentAnomalies)

	require.True(t, d.ResolveAnomaly(first.ID))
	stats = d.DetectorStats()
	assert.Equal(t, 2, stats.TotalAnomalies)
	assert.Equal(t, 1, stats.UnresolvedAnomalies)
	assert.Equal(t, 0, stats.HighSeverity)
	assert.Equal(t, 1, stats.MediumSeverity)
	assert.Equal(t, 2, stats.RecentAnomalies, "resolved records still count as recent")
}
