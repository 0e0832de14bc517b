// Package analysis turns free-text model output into structured,
// schema-validated analyses of document chunks, and merges per-chunk
// analyses into one document-level record.
package analysis

import (
	"encoding/json"
	"sort"
	"strings"
)

// Sentinel summaries. A failure record marks a chunk whose analysis did
// not parse; the empty record is the merge result of zero analyses.
const (
	failureSummary = "Error analyzing chunk"
	emptySummary   = "No analysis available"
	noSummary      = "No summary provided"
)

// maxSummaryLength caps the merged summary; longer summaries are
// truncated with a marker.
const maxSummaryLength = 1000

// Record is a structured analysis of a chunk or a whole document.
// All list fields are deduplicated sets at the merge boundary.
type Record struct {
	Summary          string   `json:"summary"`
	KeyPoints        []string `json:"key_points"`
	TechnicalDetails []string `json:"technical_details"`
	Topics           []string `json:"topics"`
	Concerns         []string `json:"concerns"`
}

// Result is the outcome of analyzing one chunk: either a parsed record or
// a degraded sentinel. Malformed model output never surfaces as an error.
type Result struct {
	Record   Record
	Degraded bool
}

// FailureRecord returns the sentinel stored for a chunk whose analysis
// failed.
func FailureRecord() Record {
	return Record{
		Summary:          failureSummary,
		KeyPoints:        []string{},
		TechnicalDetails: []string{},
		Topics:           []string{},
		Concerns:         []string{},
	}
}

// EmptyRecord returns the fixed record produced by merging zero analyses.
func EmptyRecord() Record {
	return Record{
		Summary:          emptySummary,
		KeyPoints:        []string{},
		TechnicalDetails: []string{},
		Topics:           []string{},
		Concerns:         []string{},
	}
}

// IsFailure reports whether r is the per-chunk failure sentinel.
func (r Record) IsFailure() bool {
	return r.Summary == failureSummary
}

// ExtractJSON returns the substring between the first '{' and the last
// '}' of s, tolerating prose before and after the JSON object the model
// was asked to emit. The second return is false when no brace pair exists.
func ExtractJSON(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// parseRecord decodes raw model output into a Record, defaulting any
// missing or mistyped field rather than failing.
func parseRecord(output string) (Record, bool) {
	jsonStr, ok := ExtractJSON(output)
	if !ok {
		return Record{}, false
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return Record{}, false
	}

	rec := Record{
		Summary:          stringField(raw, "summary"),
		KeyPoints:        listField(raw, "key_points"),
		TechnicalDetails: listField(raw, "technical_details"),
		Topics:           listField(raw, "topics"),
		Concerns:         listField(raw, "concerns"),
	}
	return rec, true
}

func stringField(raw map[string]json.RawMessage, key string) string {
	msg, ok := raw[key]
	if !ok {
		return noSummary
	}
	var s string
	if err := json.Unmarshal(msg, &s); err != nil || strings.TrimSpace(s) == "" {
		return noSummary
	}
	return s
}

func listField(raw map[string]json.RawMessage, key string) []string {
	msg, ok := raw[key]
	if !ok {
		return []string{}
	}
	var items []any
	if err := json.Unmarshal(msg, &items); err != nil {
		return []string{}
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	if out == nil {
		return []string{}
	}
	return out
}

func sortedSet(values map[string]struct{}) []string {
	out := make([]string, 0, len(values))
	for v := range values {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
