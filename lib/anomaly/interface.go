package anomaly

import (
	"time"

	"github.com/ValentinKolb/sKV/lib/store"
)

// --------------------------------------------------------------------------
// Anomaly record
// --------------------------------------------------------------------------

// Severity grades how urgent an anomaly is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// AnomalyType names the detection that produced an anomaly.
type AnomalyType string

const (
	TypeSpike     AnomalyType = "spike"      // access rate far above baseline
	TypeErrorRate AnomalyType = "error_rate" // elevated error fraction
	TypeLatency   AnomalyType = "latency"    // operation latency far above baseline
	TypeHotKey    AnomalyType = "hot_key"    // single key dominating accesses
	TypeColdKey   AnomalyType = "cold_key"   // aged key that was never read
)

// Anomaly is one detection. Records are kept as an audit trail: resolving
// an anomaly flips Resolved but never deletes the record.
type Anomaly struct {
	ID          string      `json:"id"`
	Type        AnomalyType `json:"type"`
	Severity    Severity    `json:"severity"`
	Description string      `json:"description"`
	Key         string      `json:"key,omitempty"`    // affected key, empty for system level detections
	Metric      string      `json:"metric,omitempty"` // metric that triggered the detection
	Timestamp   time.Time   `json:"timestamp"`
	Resolved    bool        `json:"resolved"`
}

// DetectorStats summarizes the detector's record list. The severity
// breakdown covers unresolved anomalies only.
type DetectorStats struct {
	TotalAnomalies      int `json:"total_anomalies"`
	UnresolvedAnomalies int `json:"unresolved_anomalies"`
	HighSeverity        int `json:"high_severity"`
	MediumSeverity      int `json:"medium_severity"`
	LowSeverity         int `json:"low_severity"`
	RecentAnomalies     int `json:"recent_anomalies"` // detected within the last 5 minutes
}

// --------------------------------------------------------------------------
// Interface
// --------------------------------------------------------------------------

// IDetector watches store traffic through bounded sliding windows and
// flags statistical outliers. Detection is advisory: a check that cannot
// be computed (too few samples, zero variance) reports no anomaly rather
// than failing.
type IDetector interface {
	// RecordAccess feeds one operation outcome into the sliding windows.
	// A non-positive latency only records the outcome.
	RecordAccess(success bool, latency time.Duration)

	// CheckAccessSpike compares the mean of the 10 most recent access
	// outcomes against the rest of the window. With at least 20 samples,
	// spread in the baseline and a z-score above the spike threshold it
	// emits a "spike" anomaly, otherwise nil.
	CheckAccessSpike() *Anomaly

	// CheckErrorRate computes the error fraction over the 10 most recent
	// samples. With at least 10 samples and a fraction above the error
	// threshold it emits an "error_rate" anomaly, otherwise nil.
	CheckErrorRate() *Anomaly

	// CheckLatencySpike applies the spike logic to the latency window. It
	// additionally requires a positive baseline mean.
	CheckLatencySpike() *Anomaly

	// CheckKeyAnomalies scans all live entries of the store. With more
	// than 10 entries it flags keys whose access count z-scores above 4
	// as "hot_key" and keys that are older than 7 days but were never
	// read as "cold_key".
	CheckKeyAnomalies(s store.IStore) ([]Anomaly, error)

	// RunFullCheck executes all four checks and returns the newly
	// detected anomalies.
	RunFullCheck(s store.IStore) ([]Anomaly, error)

	// GetAnomalies returns recorded anomalies, newest first. A non-empty
	// severity filters to that severity; unresolvedOnly drops resolved
	// records.
	GetAnomalies(severity Severity, unresolvedOnly bool) []Anomaly

	// ResolveAnomaly marks the anomaly with the given id resolved and
	// reports whether it was found.
	ResolveAnomaly(id string) bool

	// DetectorStats summarizes the record list.
	DetectorStats() DetectorStats
}
