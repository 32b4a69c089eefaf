package anomaly

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/lib/util"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	defaultWindowSize         = 100
	defaultSpikeThreshold     = 3.0  // z-score above which a spike is flagged
	defaultErrorRateThreshold = 0.05 // error fraction above which the rate is elevated

	// recentSampleCount is the slice of the window the checks compare
	// against the baseline.
	recentSampleCount = 10

	// minSpikeSamples is the window fill the z-score checks need: 10
	// recent samples plus at least 10 baseline samples.
	minSpikeSamples = 20

	// highSpikeZScore upgrades a spike to high severity.
	highSpikeZScore = 5.0

	// highErrorRate upgrades an elevated error rate to high severity.
	highErrorRate = 0.10

	// minKeyPopulation is the entry count the key checks require, the
	// population must be strictly larger.
	minKeyPopulation = 10

	// hotKeyZScore flags a key whose access count z-scores above it.
	hotKeyZScore = 4.0

	// coldKeyAge flags never-read keys older than this.
	coldKeyAge = 7 * 24 * time.Hour

	// recentAnomalyAge bounds the "recent" bucket in DetectorStats.
	recentAnomalyAge = 5 * time.Minute
)

// --------------------------------------------------------------------------
// Core structure and options
// --------------------------------------------------------------------------

// detectorImpl implements IDetector
type detectorImpl struct {
	opts   *Options
	logger *zap.Logger

	// mu guards the windows and the anomaly list
	mu             sync.Mutex
	accessOutcomes *window
	errorFlags     *window
	latencies      *window
	anomalies      []*Anomaly
}

// Options configures the detector during initialization
type Options struct {
	WindowSize         int         // Sliding window size (0 = use default: 100)
	SpikeThreshold     float64     // Z-score that counts as a spike (0 = use default: 3.0)
	ErrorRateThreshold float64     // Error fraction that counts as elevated (0 = use default: 5%)
	Logger             *zap.Logger // Logger (nil = no logging)
}

// DefaultOptions returns the default detector options.
func DefaultOptions() *Options {
	return &Options{
		WindowSize:         defaultWindowSize,
		SpikeThreshold:     defaultSpikeThreshold,
		ErrorRateThreshold: defaultErrorRateThreshold,
	}
}

// New creates an anomaly detector.
func New(opts *Options) IDetector {
	if opts == nil {
		opts = DefaultOptions()
	}

	o := *opts
	if o.WindowSize <= 0 {
		o.WindowSize = defaultWindowSize
	}
	if o.SpikeThreshold <= 0 {
		o.SpikeThreshold = defaultSpikeThreshold
	}
	if o.ErrorRateThreshold <= 0 {
		o.ErrorRateThreshold = defaultErrorRateThreshold
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}

	return &detectorImpl{
		opts:           &o,
		logger:         o.Logger,
		accessOutcomes: newWindow(o.WindowSize),
		errorFlags:     newWindow(o.WindowSize),
		latencies:      newWindow(o.WindowSize),
	}
}

// --------------------------------------------------------------------------
// Interface Methods - Sampling
// --------------------------------------------------------------------------

// RecordAccess feeds one operation outcome into the windows, see
// IDetector.RecordAccess.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (d *detectorImpl) RecordAccess(success bool, latency time.Duration) {
	outcome, errFlag := 1.0, 0.0
	if !success {
		outcome, errFlag = 0.0, 1.0
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.accessOutcomes.push(outcome)
	d.errorFlags.push(errFlag)
	if latency > 0 {
		d.latencies.push(float64(latency) / float64(time.Millisecond))
	}
}

// --------------------------------------------------------------------------
// Interface Methods - System Level Checks
// --------------------------------------------------------------------------

// CheckAccessSpike flags a recent jump in access outcomes, see
// IDetector.CheckAccessSpike.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (d *detectorImpl) CheckAccessSpike() *Anomaly {
	d.mu.Lock()
	defer d.mu.Unlock()

	det, ok := d.detectSpikeLocked(d.accessOutcomes, false)
	if !ok {
		return nil
	}

	a := &Anomaly{
		Type:     TypeSpike,
		Severity: spikeSeverity(det.zScore),
		Description: fmt.Sprintf("access rate spike: recent mean %.2f is %.1f standard deviations above the baseline %.2f",
			det.recentMean, det.zScore, det.baselineMean),
		Metric: "access_rate",
	}
	d.recordLocked(a)

	out := *a
	return &out
}

// CheckErrorRate flags an elevated error fraction over the most recent
// samples, see IDetector.CheckErrorRate.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (d *detectorImpl) CheckErrorRate() *Anomaly {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.errorFlags.len() < recentSampleCount {
		return nil
	}

	recent := d.errorFlags.values[d.errorFlags.len()-recentSampleCount:]
	rate := util.Mean(recent)
	if rate <= d.opts.ErrorRateThreshold {
		return nil
	}

	severity := SeverityMedium
	if rate > highErrorRate {
		severity = SeverityHigh
	}
	a := &Anomaly{
		Type:     TypeErrorRate,
		Severity: severity,
		Description: fmt.Sprintf("elevated error rate: %.1f%% over the last %d operations (threshold %.0f%%)",
			rate*100, recentSampleCount, d.opts.ErrorRateThreshold*100),
		Metric: "error_rate",
	}
	d.recordLocked(a)

	out := *a
	return &out
}

// CheckLatencySpike flags a recent jump in operation latency, see
// IDetector.CheckLatencySpike.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (d *detectorImpl) CheckLatencySpike() *Anomaly {
	d.mu.Lock()
	defer d.mu.Unlock()

	det, ok := d.detectSpikeLocked(d.latencies, true)
	if !ok {
		return nil
	}

	a := &Anomaly{
		Type:     TypeLatency,
		Severity: spikeSeverity(det.zScore),
		Description: fmt.Sprintf("latency spike: recent mean %.1fms against a baseline of %.1fms",
			det.recentMean, det.baselineMean),
		Metric: "latency",
	}
	d.recordLocked(a)

	out := *a
	return &out
}

// spikeDetection summarizes a window split against its baseline.
type spikeDetection struct {
	zScore       float64
	recentMean   float64
	baselineMean float64
}

// detectSpikeLocked compares the mean of the most recent samples against
// the rest of the window. It reports false whenever the statistic cannot
// be computed or stays below the threshold. The caller must hold d.mu.
func (d *detectorImpl) detectSpikeLocked(w *window, requirePositiveMean bool) (spikeDetection, bool) {
	if w.len() < minSpikeSamples {
		return spikeDetection{}, false
	}

	recent := w.values[w.len()-recentSampleCount:]
	baseline := w.values[:w.len()-recentSampleCount]

	stats := util.NewStats(baseline)
	if requirePositiveMean && stats.Mean <= 0 {
		return spikeDetection{}, false
	}

	recentMean := util.Mean(recent)
	z, ok := stats.ZScore(recentMean)
	if !ok || z <= d.opts.SpikeThreshold {
		return spikeDetection{}, false
	}

	return spikeDetection{zScore: z, recentMean: recentMean, baselineMean: stats.Mean}, true
}

func spikeSeverity(z float64) Severity {
	if z >= highSpikeZScore {
		return SeverityHigh
	}
	return SeverityMedium
}

// --------------------------------------------------------------------------
// Interface Methods - Key Level Checks
// --------------------------------------------------------------------------

// CheckKeyAnomalies scans the store for hot and cold keys, see
// IDetector.CheckKeyAnomalies.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (d *detectorImpl) CheckKeyAnomalies(s store.IStore) ([]Anomaly, error) {
	entries, err := s.Entries()
	if err != nil {
		return nil, err
	}
	if len(entries) <= minKeyPopulation {
		return nil, nil
	}

	counts := make([]float64, 0, len(entries))
	for _, entry := range entries {
		counts = append(counts, float64(entry.AccessCount))
	}
	stats := util.NewStats(counts)

	// iterate in key order so repeated scans report in a stable order
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	now := time.Now()
	var fresh []*Anomaly
	for _, key := range keys {
		entry := entries[key]
		z, ok := stats.ZScore(float64(entry.AccessCount))
		switch {
		case ok && z > hotKeyZScore:
			fresh = append(fresh, &Anomaly{
				Type:     TypeHotKey,
				Severity: SeverityLow,
				Description: fmt.Sprintf("unusually high access count: %d (population mean %.0f)",
					entry.AccessCount, stats.Mean),
				Key:    key,
				Metric: "access_count",
			})
		case entry.AccessCount == 0 && entry.Age(now) > coldKeyAge:
			fresh = append(fresh, &Anomaly{
				Type:     TypeColdKey,
				Severity: SeverityLow,
				Description: fmt.Sprintf("created %d days ago but never accessed",
					int(entry.Age(now).Hours()/24)),
				Key:    key,
				Metric: "access_count",
			})
		}
	}
	if len(fresh) == 0 {
		return nil, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	detected := make([]Anomaly, 0, len(fresh))
	for _, a := range fresh {
		d.recordLocked(a)
		detected = append(detected, *a)
	}
	return detected, nil
}

// RunFullCheck executes all checks, see IDetector.RunFullCheck. On a
// store error the system level detections made so far are still
// returned.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (d *detectorImpl) RunFullCheck(s store.IStore) ([]Anomaly, error) {
	var detected []Anomaly

	if a := d.CheckAccessSpike(); a != nil {
		detected = append(detected, *a)
	}
	if a := d.CheckErrorRate(); a != nil {
		detected = append(detected, *a)
	}
	if a := d.CheckLatencySpike(); a != nil {
		detected = append(detected, *a)
	}

	keyAnomalies, err := d.CheckKeyAnomalies(s)
	if err != nil {
		return detected, err
	}
	return append(detected, keyAnomalies...), nil
}

// --------------------------------------------------------------------------
// Interface Methods - Record Management
// --------------------------------------------------------------------------

// GetAnomalies filters and sorts the recorded anomalies, see
// IDetector.GetAnomalies.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (d *detectorImpl) GetAnomalies(severity Severity, unresolvedOnly bool) []Anomaly {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []Anomaly
	for _, a := range d.anomalies {
		if unresolvedOnly && a.Resolved {
			continue
		}
		if severity != "" && a.Severity != severity {
			continue
		}
		out = append(out, *a)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// ResolveAnomaly marks one anomaly resolved, see
// IDetector.ResolveAnomaly.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (d *detectorImpl) ResolveAnomaly(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, a := range d.anomalies {
		if a.ID != id {
			continue
		}
		if !a.Resolved {
			a.Resolved = true
			d.logger.Info("anomaly resolved",
				zap.String("id", id), zap.String("type", string(a.Type)))
		}
		return true
	}
	return false
}

// DetectorStats summarizes the record list, see IDetector.DetectorStats.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (d *detectorImpl) DetectorStats() DetectorStats {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	stats := DetectorStats{TotalAnomalies: len(d.anomalies)}
	for _, a := range d.anomalies {
		if now.Sub(a.Timestamp) < recentAnomalyAge {
			stats.RecentAnomalies++
		}
		if a.Resolved {
			continue
		}
		stats.UnresolvedAnomalies++
		switch a.Severity {
		case SeverityHigh:
			stats.HighSeverity++
		case SeverityMedium:
			stats.MediumSeverity++
		case SeverityLow:
			stats.LowSeverity++
		}
	}
	return stats
}

// recordLocked stamps the anomaly and appends it to the audit trail. The
// caller must hold d.mu.
func (d *detectorImpl) recordLocked(a *Anomaly) {
	a.ID = uuid.NewString()
	a.Timestamp = time.Now()
	d.anomalies = append(d.anomalies, a)

	fields := []zap.Field{
		zap.String("id", a.ID),
		zap.String("type", string(a.Type)),
		zap.String("severity", string(a.Severity)),
		zap.String("description", a.Description),
	}
	if a.Key != "" {
		fields = append(fields, zap.String("key", a.Key))
	}
	if a.Severity == SeverityHigh {
		d.logger.Warn("anomaly detected", fields...)
	} else {
		d.logger.Info("anomaly detected", fields...)
	}
}
