package analysis

import "strings"

// MergeRecords reduces per-chunk analyses into one document-level record.
// Summaries of failure sentinels are skipped; list fields are unioned,
// deduplicated, and sorted. Merging is order-independent. An empty input
// yields EmptyRecord.
func MergeRecords(records []Record) Record {
	if len(records) == 0 {
		return EmptyRecord()
	}

	points := make(map[string]struct{})
	details := make(map[string]struct{})
	topics := make(map[string]struct{})
	concerns := make(map[string]struct{})
	var summaries []string

	for _, rec := range records {
		if rec.Summary != "" && !rec.IsFailure() && rec.Summary != noSummary {
			summaries = append(summaries, rec.Summary)
		}
		addAll(points, rec.KeyPoints)
		addAll(details, rec.TechnicalDetails)
		addAll(topics, rec.Topics)
		addAll(concerns, rec.Concerns)
	}

	summary := "No summary available"
	if len(summaries) > 0 {
		summary = strings.Join(summaries, " ")
	}
	if runes := []rune(summary); len(runes) > maxSummaryLength {
		summary = string(runes[:maxSummaryLength-3]) + "..."
	}

	return Record{
		Summary:          summary,
		KeyPoints:        sortedSet(points),
		TechnicalDetails: sortedSet(details),
		Topics:           sortedSet(topics),
		Concerns:         sortedSet(concerns),
	}
}

func addAll(set map[string]struct{}, values []string) {
	for _, v := range values {
		if v != "" {
			set[v] = struct{}{}
		}
	}
}
