package http

import (
	"sort"
	"strconv"
	"strings"

	"ocp/internal/overlap"
	"ocp/internal/services"
)

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// analysisCacheKey identifies a read-only analysis by its allow-list and
// selection overrides. Allow-list order is kept because it drives group ids.
// Names and ids are quoted so separators inside them cannot collide.
func analysisCacheKey(req services.AnalysisRequest) string {
	var b strings.Builder
	b.WriteString("analyze|")
	if req.Categories == nil {
		b.WriteString("*")
	} else {
		writeQuoted(&b, req.Categories)
	}

	keys := make([]overlap.GroupKey, 0, len(req.Selections))
	for k := range req.Selections {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Category != keys[j].Category {
			return keys[i].Category < keys[j].Category
		}
		return keys[i].GroupID < keys[j].GroupID
	})
	for _, k := range keys {
		ids := make([]string, 0, len(req.Selections[k]))
		for id := range req.Selections[k] {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		b.WriteString("|")
		b.WriteString(strconv.Quote(k.Category))
		b.WriteString("#")
		b.WriteString(strconv.Itoa(k.GroupID))
		b.WriteString("=")
		writeQuoted(&b, ids)
	}
	return b.String()
}

func writeQuoted(b *strings.Builder, items []string) {
	b.WriteString("[")
	for i, s := range items {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(strconv.Quote(s))
	}
	b.WriteString("]")
}
