// Package scoring computes the weighted risk score, the heuristic anomaly flag
// and a plain-text root cause for a utilization reading.
package scoring

import (
	"math"
	"strings"
)

// Input is a reading to score. RequestsPerMin is optional.
type Input struct {
	CPU            float64 `json:"cpu"`
	Mem            float64 `json:"mem"`
	Disk           float64 `json:"disk"`
	RequestsPerMin float64 `json:"requests_per_min"`
}

// RiskScore is 0.5cpu + 0.3mem + 0.2disk clamped to [0,100], two decimals.
func RiskScore(cpu, mem, disk float64) float64 {
	risk := 0.5*cpu + 0.3*mem + 0.2*disk
	risk = math.Max(0, math.Min(risk, 100))
	return math.Round(risk*100) / 100
}

// IsAnomaly flags a reading when any metric exceeds 90.
func IsAnomaly(cpu, mem, disk float64) bool {
	return cpu > 90 || mem > 90 || disk > 90
}

const (
	trafficSpikeRPM = 5000
	normalCause     = "No significant anomalies found — system operating normally."
)

// RootCause lists likely causes, one "- " prefixed line each.
func RootCause(in Input) string {
	var causes []string

	switch {
	case in.CPU >= 95:
		causes = append(causes, "Severe CPU overload: sustained >95% CPU. Likely causes: runaway process, infinite loop, heavy batch job, or DDoS-like traffic.")
	case in.CPU >= 85:
		causes = append(causes, "High CPU usage (85–95%). Possible causes: inefficient code, unoptimized workloads, or increased user load.")
	case in.CPU >= 70:
		causes = append(causes, "Moderate CPU usage — monitor for growth trends.")
	}

	switch {
	case in.Mem >= 90:
		causes = append(causes, "Critical memory usage (>90%). Likely memory leak or too many concurrent processes.")
	case in.Mem >= 75:
		causes = append(causes, "High memory usage — check caches or large dataset operations.")
	}

	switch {
	case in.Disk >= 90:
		causes = append(causes, "Disk nearly full (>90%). Logs, snapshots, or backups may need cleanup.")
	case in.Disk >= 80:
		causes = append(causes, "High disk usage — monitor for log growth.")
	}

	if in.RequestsPerMin > trafficSpikeRPM {
		causes = append(causes, "Traffic spike detected — potential load surge or automated bot traffic.")
	}
	if len(causes) == 0 {
		causes = append(causes, normalCause)
	}

	var b strings.Builder
	for i, c := range causes {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(c)
	}
	return b.String()
}
