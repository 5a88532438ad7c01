// Package parse normalises the identifiers, directions and timestamps reported by RFID readers.
package parse

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"rental-rfid-backend/internal/model"
)

// Readers print EPCs grouped with spaces, colons or dashes.
var separatorRe = regexp.MustCompile(`[\s:\-]+`)

// ISO-8601 forms seen from reader firmware. Fractional seconds are accepted
// after any layout with seconds.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// EPC normalises a raw EPC so every format of one physical tag maps to one key.
func EPC(raw string) (string, error) {
	epc := strings.ToUpper(separatorRe.ReplaceAllString(strings.TrimSpace(raw), ""))
	if epc == "" {
		return "", fmt.Errorf("epc is empty")
	}
	return epc, nil
}

// TID normalises an optional TID the same way as an EPC. Blank input yields nil.
func TID(raw *string) *string {
	if raw == nil {
		return nil
	}
	tid, err := EPC(*raw)
	if err != nil {
		return nil
	}
	return &tid
}

// Direction parses an optional crossing direction. Blank input yields nil.
func Direction(raw string) (*model.Direction, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return nil, nil
	}
	d := model.Direction(s)
	switch d {
	case model.DirectionIn, model.DirectionOut:
		return &d, nil
	}
	return nil, fmt.Errorf("direction must be IN or OUT, got %q", raw)
}

// Timestamp parses an ISO-8601 read time, falling back to now when none is given.
// Times without a zone are taken as UTC.
func Timestamp(raw *string, now time.Time) (time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return now.UTC(), nil
	}
	s := strings.TrimSpace(*raw)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("timestamp %q is not in a supported ISO-8601 format", s)
}
