// Package models defines shared data types for the application.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/blockedby/stagesync/internal/logger"
)

// JobID is an opaque posting identifier.
// The backend emits numeric ids; string ids are accepted as well.
type JobID string

// String returns the raw identifier.
func (id JobID) String() string {
	return string(id)
}

// IsNumeric reports whether the id is an integer literal.
func (id JobID) IsNumeric() bool {
	if id == "" {
		return false
	}
	_, err := strconv.ParseInt(string(id), 10, 64)
	return err == nil
}

// MarshalJSON keeps numeric ids as JSON numbers so persisted arrays
// match what the backend sent.
func (id JobID) MarshalJSON() ([]byte, error) {
	if id.IsNumeric() {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON accepts a JSON number or string.
func (id *JobID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode job id: %w", err)
		}
		*id = JobID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode job id: %w", err)
	}
	*id = JobID(n.String())
	return nil
}

// Time is a timestamp that tolerates the formats the backend produces:
// RFC 3339 (with or without fraction), plain dates, empty strings and null.
type Time struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.000Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime parses s using the accepted layouts.
func ParseTime(s string) (Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Time{t}, nil
		}
	}
	return Time{}, fmt.Errorf("unrecognized time %q", s)
}

// MustTime is ParseTime for literals; it panics on error.
func MustTime(s string) Time {
	t, err := ParseTime(s)
	if err != nil {
		panic(err)
	}
	return t
}

// MarshalJSON writes RFC 3339, or null for the zero time.
func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// UnmarshalJSON reads any accepted layout. A value that is not a timestamp
// decodes as the zero time so one odd posting cannot fail a whole page.
func (t *Time) UnmarshalJSON(data []byte) error {
	*t = Time{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		logger.Get().Debug().Str("value", string(data)).Msg("non-string timestamp treated as empty")
		return nil
	}
	parsed, err := ParseTime(s)
	if err != nil {
		logger.Get().Debug().Err(err).Msg("unparseable timestamp treated as empty")
		return nil
	}
	*t = parsed
	return nil
}

// Count is a non-negative quantity the backend sends as a number or a
// numeric string. Anything else decodes as zero.
type Count int

// UnmarshalJSON accepts 3, 3.0, "3" and null.
func (c *Count) UnmarshalJSON(data []byte) error {
	*c = 0
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil
		}
		raw = strings.TrimSpace(raw)
	}
	if raw == "" {
		return nil
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil || n < 0 {
		logger.Get().Debug().Str("value", string(data)).Msg("unparseable count treated as zero")
		return nil
	}
	*c = Count(n)
	return nil
}

// Job is an internship posting as served by the catalog.
// It is read-only on the client.
type Job struct {
	ID JobID `json:"id"`

	// content
	Title       string `json:"Titre"`
	Label       string `json:"Libelle"`
	Domain      string `json:"Domaine"`
	Description string `json:"Description"`

	// organization
	Organization string `json:"Nom"`
	Address      string `json:"Address"`
	State        string `json:"State"`

	// requirements
	Experience string `json:"Experience"`
	Level      string `json:"Niveau"`
	Language   string `json:"Langue"`
	Vacancies  Count  `json:"PostesVacants"`

	// dates
	StartDate Time `json:"DateDebut"`
	EndDate   Time `json:"DateFin"`
	CreatedAt Time `json:"createdAt"`
}

// SearchableFields returns the text a search term is matched against.
func (j Job) SearchableFields() []string {
	return []string{
		j.Title,
		j.Label,
		j.Domain,
		j.Level,
		j.Organization,
		j.Address,
		j.State,
		j.Experience,
	}
}

// Pagination mirrors the catalog's pagination block.
type Pagination struct {
	CurrentPage int `json:"currentPage"`
	TotalPages  int `json:"totalPages"`
	TotalItems  int `json:"totalItems"`
}

// LastPage returns max(TotalPages, 1).
func (p Pagination) LastPage() int {
	if p.TotalPages < 1 {
		return 1
	}
	return p.TotalPages
}

// InRange reports whether page is a valid page to request.
func (p Pagination) InRange(page int) bool {
	return page >= 1 && page <= p.LastPage()
}

// SortOrder selects the createdAt ordering of a listing.
type SortOrder string

// SortOrder constants.
const (
	SortNewest SortOrder = "newest"
	SortOldest SortOrder = "oldest"
)

// ParseSortOrder maps user input to a SortOrder, defaulting to newest.
func ParseSortOrder(s string) SortOrder {
	if SortOrder(strings.ToLower(strings.TrimSpace(s))) == SortOldest {
		return SortOldest
	}
	return SortNewest
}
