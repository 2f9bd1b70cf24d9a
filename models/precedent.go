package models

import "time"

// Movement is a single procedural movement in a court record
type Movement struct {
	Code        int       `json:"code"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
}

// PrecedentRecord is a case record returned by a court index.
// Records are transient: they are formatted into a generation request
// or discarded, never persisted.
type PrecedentRecord struct {
	Court       string     `json:"court"`
	CaseNumber  string     `json:"case_number"`
	Class       string     `json:"class"`
	Subjects    []string   `json:"subjects"`
	IssuingBody string     `json:"issuing_body"`
	FilingDate  time.Time  `json:"filing_date"`
	LastUpdate  time.Time  `json:"last_update"`
	Movements   []Movement `json:"movements,omitempty"`
}

// LatestMovement returns the most recent movement, if any
func (p *PrecedentRecord) LatestMovement() *Movement {
	if len(p.Movements) == 0 {
		return nil
	}
	latest := &p.Movements[0]
	for i := range p.Movements {
		if p.Movements[i].Date.After(latest.Date) {
			latest = &p.Movements[i]
		}
	}
	return latest
}
