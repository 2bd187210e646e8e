// Package model defines the data structures used throughout the application.
package model

import (
	"encoding/json"
	"time"
)

// CheckStatus is the outcome of the most recent reachability probe of a
// playlist's source URL.
type CheckStatus string

const (
	StatusOK      CheckStatus = "OK"
	StatusFail    CheckStatus = "FAIL"
	StatusUnknown CheckStatus = "UNKNOWN"
)

// Rule is one search/replace transformation step. Rules are applied in
// list order; each rule's output feeds the next.
//
// An empty Search pattern makes the rule a no-op. A regex rule whose
// pattern does not compile is also a no-op — a bad rule never aborts
// processing of the rest of the list.
type Rule struct {
	Search        string `json:"search"`
	Replace       string `json:"replace"`
	IsRegex       bool   `json:"is_regex"`
	CaseSensitive bool   `json:"case_sensitive"`
}

// UnmarshalJSON decodes a rule with case_sensitive defaulting to true
// when the field is absent, matching how clients have always sent rules.
func (r *Rule) UnmarshalJSON(data []byte) error {
	type alias Rule
	a := alias{CaseSensitive: true}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = Rule(a)
	return nil
}

// Playlist is a published, addressable document.
//
// Token is the stable public identifier — a UUID generated once at
// creation and never changed afterwards. The schedulers mutate content
// and bookkeeping fields in place but never the token.
//
// Optional string fields use "" as the zero value rather than pointers;
// optional timestamps are pointers because time.Time has no natural
// "absent" value.
type Playlist struct {
	Token           string `json:"token"`
	OwnerID         string `json:"-"` // empty for anonymous publications
	CurrentContent  string `json:"-"`
	OriginalContent string `json:"-"` // pre-transformation input, kept for re-processing
	Rules           []Rule `json:"-"`
	SourceURL       string `json:"source_url"`
	Name            string `json:"name"`

	AutoUpdate         bool       `json:"auto_update"`
	AutoUpdateInterval int        `json:"auto_update_interval"` // seconds, [30, 86400]
	LastUpdateAt       *time.Time `json:"last_update_at"`
	LastUpdateError    string     `json:"update_error,omitempty"`

	TotalHits   int64 `json:"total_hits"` // owned by the analytics side, read-only here
	ShowOnBoard bool  `json:"show_on_board"`

	LastStatus     CheckStatus `json:"last_status"`
	LastCheckAt    *time.Time  `json:"last_check_at"`
	LastCheckError string      `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// CheckRecord is one append-only entry in a playlist's reachability
// history. Records are never mutated; they disappear only when the
// parent playlist is deleted.
type CheckRecord struct {
	Token     string      `json:"-"`
	CheckedAt time.Time   `json:"check_at"`
	Status    CheckStatus `json:"status"`
	HTTPCode  *int        `json:"http_code"`
	Error     string      `json:"error,omitempty"`
}

// BoardEntry is one row of the public leaderboard: a playlist that opted
// in via ShowOnBoard, ranked by hits over the requested period.
type BoardEntry struct {
	Token      string      `json:"token"`
	Name       string      `json:"name"`
	LastStatus CheckStatus `json:"last_status"`
	PeriodHits int64       `json:"period_hits"`
}

// AdminStats is the aggregate snapshot shown on the admin dashboard.
type AdminStats struct {
	TotalUsers       int   `json:"total_users"`
	ApprovedUsers    int   `json:"approved_users"`
	PendingUsers     int   `json:"pending_users"`
	TotalPlaylists   int   `json:"total_playlists"`
	TotalHits        int64 `json:"total_hits"`
	Hits24h          int64 `json:"hits_24h"`
	Users24h         int   `json:"users_24h"`
	Playlists24h     int   `json:"playlists_24h"`
	OpenRegistration bool  `json:"open_registration"`
}
