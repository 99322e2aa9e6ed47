// Package compare pairs the Local and AWS streams for side-by-side display.
//
// Rows are aligned by recency: both sequences are right-aligned on their newest
// element and paired by offset from the end. Samples sharing a row are not
// guaranteed to have been captured at the same wall-clock time when the two
// sources poll at different cadences or started at different moments.
package compare

import (
	"fmt"

	"infrasight/internal/models"
)

// Align returns max(len(local), len(aws)) rows. Row i pairs
// local[len(local)-maxLen+i] with aws[len(aws)-maxLen+i]; an index before the
// start of a sequence leaves that side empty.
func Align(local, aws []models.Sample) []models.AlignedRow {
	maxLen := max(len(local), len(aws))
	rows := make([]models.AlignedRow, 0, maxLen)
	for i := 0; i < maxLen; i++ {
		l, lok := at(local, len(local)-maxLen+i)
		a, aok := at(aws, len(aws)-maxLen+i)

		row := models.AlignedRow{Time: fmt.Sprintf("T%d", i)}
		switch {
		case lok && l.Time != "":
			row.Time = l.Time
		case aok && a.Time != "":
			row.Time = a.Time
		}
		if lok {
			row.LocalRisk = ptr(l.Risk)
		}
		if aok {
			row.AWSRisk = ptr(a.Risk)
		}
		rows = append(rows, row)
	}
	return rows
}

func at(samples []models.Sample, idx int) (models.Sample, bool) {
	if idx < 0 || idx >= len(samples) {
		return models.Sample{}, false
	}
	return samples[idx], true
}

func ptr(v float64) *float64 { return &v }
