// Package history persists per-program scan accounting between runs.
package history

import (
	"encoding/json"
	"strconv"
	"time"
)

const (
	DateFormat      = "2006-01-02"
	lastScanField   = "last_scan"
	timestampLayout = time.RFC3339
)

// ProgramRecord tracks how often a program has been scanned.
type ProgramRecord struct {
	DailyCounts map[string]int
	LastScan    *time.Time
}

// Records maps program name to its scan record.
type Records map[string]*ProgramRecord

// CountFor returns the recorded scan count for the given UTC date.
func (r *ProgramRecord) CountFor(date string) int {
	if r == nil || r.DailyCounts == nil {
		return 0
	}
	return r.DailyCounts[date]
}

// MarkScanned increments the date's counter and advances LastScan.
// LastScan never moves backwards.
func (r *ProgramRecord) MarkScanned(now time.Time, date string) {
	if r.DailyCounts == nil {
		r.DailyCounts = make(map[string]int)
	}
	r.DailyCounts[date]++
	if r.LastScan == nil || now.After(*r.LastScan) {
		ts := now
		r.LastScan = &ts
	}
}

// Clone returns a deep copy, so callers can stage updates without
// mutating the loaded snapshot.
func (recs Records) Clone() Records {
	out := make(Records, len(recs))
	for name, rec := range recs {
		copied := &ProgramRecord{}
		if rec.DailyCounts != nil {
			copied.DailyCounts = make(map[string]int, len(rec.DailyCounts))
			for d, c := range rec.DailyCounts {
				copied.DailyCounts[d] = c
			}
		}
		if rec.LastScan != nil {
			ts := *rec.LastScan
			copied.LastScan = &ts
		}
		out[name] = copied
	}
	return out
}

// Ensure returns the record for a program, creating it if needed.
func (recs Records) Ensure(program string) *ProgramRecord {
	rec, ok := recs[program]
	if !ok {
		rec = &ProgramRecord{DailyCounts: make(map[string]int)}
		recs[program] = rec
	}
	return rec
}

// MarshalJSON flattens the record into the on-disk shape: date keys with
// integer counts plus a "last_scan" timestamp.
func (r *ProgramRecord) MarshalJSON() ([]byte, error) {
	flat := make(map[string]interface{}, len(r.DailyCounts)+1)
	for date, count := range r.DailyCounts {
		flat[date] = count
	}
	if r.LastScan != nil {
		flat[lastScanField] = r.LastScan.UTC().Format(timestampLayout)
	}
	return json.Marshal(flat)
}

func (r *ProgramRecord) UnmarshalJSON(data []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}

	r.DailyCounts = make(map[string]int)
	for key, raw := range flat {
		if key == lastScanField {
			var value string
			if err := json.Unmarshal(raw, &value); err != nil {
				return err
			}
			ts, err := time.Parse(timestampLayout, value)
			if err != nil {
				return err
			}
			utc := ts.UTC()
			r.LastScan = &utc
			continue
		}
		if _, err := time.Parse(DateFormat, key); err != nil {
			// Unknown field, keep the file loadable.
			continue
		}
		var count int
		if err := json.Unmarshal(raw, &count); err != nil {
			// Counts written by hand sometimes end up quoted.
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return err
			}
			parsed, err := strconv.Atoi(s)
			if err != nil {
				return err
			}
			count = parsed
		}
		r.DailyCounts[key] = count
	}
	return nil
}
