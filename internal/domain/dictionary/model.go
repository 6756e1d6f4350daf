package dictionary

import (
	"regexp"
	"time"
)

// codePattern is the strict MKB-10 form: letter, two digits, dot, one digit.
// Three-character category codes such as "B02" are not accepted.
var codePattern = regexp.MustCompile(`^[A-Z]\d{2}\.\d$`)

// Entry is one diagnosis in the MKB-10 dictionary.
type Entry struct {
	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`
}

// ValidCode reports whether code has the accepted MKB-10 shape.
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// Outcome is how a sync attempt ended.
type Outcome string

const (
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
	OutcomeBusy    Outcome = "busy"
)

// Origin names where a CSV snapshot came from.
type Origin string

const (
	OriginRemote   Origin = "remote"
	OriginFallback Origin = "fallback"
)

// ParseStats counts what the parser did with each data row.
type ParseStats struct {
	Rows       int `json:"rows"`
	Accepted   int `json:"accepted"`
	Short      int `json:"short"`
	Invalid    int `json:"invalid"`
	Duplicates int `json:"duplicates"`
}

// SyncResult describes a completed sync attempt. Failed attempts carry the
// error text so the status endpoint can report it.
type SyncResult struct {
	Outcome    Outcome    `json:"outcome"`
	Updated    int        `json:"updated"`
	Origin     Origin     `json:"origin,omitempty"`
	Parse      ParseStats `json:"parse"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
}

// Status is the snapshot served by GET /dictionary/status.
type Status struct {
	Entries     int         `json:"entries"`
	Syncing     bool        `json:"syncing"`
	LastSync    *SyncResult `json:"last_sync,omitempty"`
	LastSuccess *SyncResult `json:"last_success,omitempty"`
	Cache       CacheStats  `json:"cache"`
}
