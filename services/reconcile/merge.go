package reconcile

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"propdata-backend/lib/table"
)

// Stats describes how the rows of a merge were paired up.
type Stats struct {
	Matched   int
	Unmatched int
	// Duplicates counts response rows that were ignored because an earlier
	// response row had the same key.
	Duplicates int
}

// Merge left joins response onto original, see Join. Ignored duplicate
// response rows are logged as a warning.
func Merge(original, response table.Batch, joinKeys []string, drop ...string) (table.Batch, error) {
	out, stats, err := Join(original, response, joinKeys, drop...)
	if err != nil {
		return table.Batch{}, err
	}
	if stats.Duplicates > 0 {
		slog.Warn(
			"response has duplicate join keys, keeping the first row of each",
			"join_keys", joinKeys,
			"duplicates", stats.Duplicates,
		)
	}
	return out, nil
}

// Join left joins response onto original on joinKeys.
//
// The drop columns are removed from the response before joining. Every
// original row is kept exactly once and in order. Columns only the
// response has are appended, unmatched rows get nil for them. When a
// non-key column exists on both sides, matched rows take the response's
// value. Rows whose key contains a nil never match.
func Join(original, response table.Batch, joinKeys []string, drop ...string) (table.Batch, Stats, error) {
	if len(joinKeys) == 0 {
		return table.Batch{}, Stats{}, fmt.Errorf("no join keys given")
	}
	for _, k := range joinKeys {
		if slices.Contains(drop, k) {
			return table.Batch{}, Stats{}, fmt.Errorf("join key %q can't be dropped", k)
		}
		if !original.HasColumn(k) {
			return table.Batch{}, Stats{}, fmt.Errorf("join key %q missing from original batch", k)
		}
		// an empty response carries no columns at all
		if response.Len() > 0 && !response.HasColumn(k) {
			return table.Batch{}, Stats{}, fmt.Errorf("join key %q missing from response batch", k)
		}
	}

	response = response.Drop(drop...)

	var added []string
	var overlay []string
	for _, c := range response.Columns {
		if slices.Contains(joinKeys, c) {
			continue
		}
		overlay = append(overlay, c)
		if !original.HasColumn(c) {
			added = append(added, c)
		}
	}

	var stats Stats
	index := make(map[string]table.Row, response.Len())
	for _, r := range response.Rows {
		key, ok := joinKey(r, joinKeys)
		if !ok {
			continue
		}
		if _, seen := index[key]; seen {
			stats.Duplicates++
			continue
		}
		index[key] = r
	}

	out := table.New(append(slices.Clone(original.Columns), added...)...)
	out.Rows = make([]table.Row, len(original.Rows))
	for i, r := range original.Rows {
		merged := make(table.Row, len(out.Columns))
		for _, c := range original.Columns {
			merged[c] = r[c]
		}
		for _, c := range added {
			merged[c] = nil
		}

		key, ok := joinKey(r, joinKeys)
		match, found := index[key]
		if ok && found {
			stats.Matched++
			for _, c := range overlay {
				merged[c] = match[c]
			}
		} else {
			stats.Unmatched++
		}
		out.Rows[i] = merged
	}
	return out, stats, nil
}

func joinKey(r table.Row, joinKeys []string) (string, bool) {
	parts := make([]string, len(joinKeys))
	for i, k := range joinKeys {
		v := r[k]
		if v == nil {
			return "", false
		}
		parts[i] = table.KeyString(v)
	}
	return strings.Join(parts, "\x1f"), true
}
