// Package sidecar parses exported photo sidecar records and extracts the
// capture timestamp.
package sidecar

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/starford/sidestamp/internal/apperr"
	"github.com/starford/sidestamp/internal/models"
)

// DateTimeLayout is the EXIF date-time format, YYYY:MM:DD HH:MM:SS.
const DateTimeLayout = "2006:01:02 15:04:05"

// Parse decodes a sidecar record. Extra fields are ignored.
func Parse(data []byte) (*models.SidecarRecord, error) {
	var rec models.SidecarRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("sidecar: %w: %v", apperr.ErrInvalidSidecar, err)
	}
	return &rec, nil
}

// TakenAt returns the instant stored in photoTakenTime.timestamp.
//
// An absent, null or falsy value (including the number 0) yields
// ErrMissingTimestamp. A non-empty string must hold a base-10 integer; a
// number is truncated toward zero.
func TakenAt(rec *models.SidecarRecord) (time.Time, error) {
	raw := rec.PhotoTakenTime
	if falsy(raw) {
		return time.Time{}, apperr.ErrMissingTimestamp
	}

	var parent map[string]json.RawMessage
	if err := json.Unmarshal(raw, &parent); err != nil {
		return time.Time{}, fmt.Errorf("sidecar: photoTakenTime is not an object: %w", apperr.ErrInvalidTimestamp)
	}
	ts, ok := parent["timestamp"]
	if !ok || falsy(ts) {
		return time.Time{}, apperr.ErrMissingTimestamp
	}

	secs, err := epochSeconds(ts)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(secs, 0), nil
}

// Format renders t in loc using DateTimeLayout. A nil loc means time.Local.
func Format(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DateTimeLayout)
}

// Years outside this range do not fit the four-digit EXIF year.
const (
	minYear = 1
	maxYear = 9999
)

// DateTime parses data and returns the formatted capture time. An instant
// whose year in loc falls outside 1..9999 yields ErrInvalidTimestamp.
func DateTime(data []byte, loc *time.Location) (string, error) {
	rec, err := Parse(data)
	if err != nil {
		return "", err
	}
	t, err := TakenAt(rec)
	if err != nil {
		return "", err
	}
	if loc == nil {
		loc = time.Local
	}
	if y := t.In(loc).Year(); y < minYear || y > maxYear {
		return "", fmt.Errorf("sidecar: %w: year %d out of range", apperr.ErrInvalidTimestamp, y)
	}
	return Format(t, loc), nil
}

func epochSeconds(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("sidecar: %w: %v", apperr.ErrInvalidTimestamp, err)
		}
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("sidecar: %w: %q is not an integer", apperr.ErrInvalidTimestamp, s)
		}
		return n, nil
	case 't', '[', '{':
		return 0, fmt.Errorf("sidecar: %w: unsupported value %s", apperr.ErrInvalidTimestamp, raw)
	default:
		f, err := strconv.ParseFloat(string(raw), 64)
		if err != nil || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt64 {
			return 0, fmt.Errorf("sidecar: %w: %s", apperr.ErrInvalidTimestamp, raw)
		}
		if n, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
			return n, nil
		}
		return int64(f), nil
	}
}

// falsy mirrors JSON truthiness: missing, null, false, 0, "", [] and {}.
func falsy(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	if len(v) == 0 {
		return true
	}
	switch string(v) {
	case "null", "false", `""`, "[]", "{}":
		return true
	}
	if v[0] == '[' || v[0] == '{' {
		var x []any
		if json.Unmarshal(v, &x) == nil {
			return len(x) == 0
		}
		var m map[string]any
		if json.Unmarshal(v, &m) == nil {
			return len(m) == 0
		}
		return false
	}
	if f, err := strconv.ParseFloat(string(v), 64); err == nil {
		return f == 0
	}
	return false
}
