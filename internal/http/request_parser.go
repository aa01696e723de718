// Package http provides the JSON API server and its handlers.
//
// This file implements decoding and validation of request bodies and query
// parameters.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"ocp/internal/overlap"
	"ocp/internal/services"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 1 << 20

// SelectionBody names a group and the contract ids to keep in it.
type SelectionBody struct {
	Category string   `json:"category"`
	GroupID  int      `json:"group_id"`
	Kept     []string `json:"kept"`
}

// Key returns the group key the selection addresses.
func (s SelectionBody) Key() overlap.GroupKey {
	return overlap.GroupKey{Category: s.Category, GroupID: s.GroupID}
}

// AnalyzeBody is the request body of POST /api/analyze.
type AnalyzeBody struct {
	Categories []string        `json:"categories"`
	Selections []SelectionBody `json:"selections"`
	Save       bool            `json:"save"`
	Publish    bool            `json:"publish"`
}

// decodeJSON reads one JSON value from the request body. Unknown fields and
// trailing data are rejected; an empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("unsupported content type %q", ct)
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if dec.More() {
		return errors.New("invalid JSON body: trailing data")
	}
	return nil
}

// ToRequest validates the body and converts it to a service request.
func (b AnalyzeBody) ToRequest() (services.AnalysisRequest, error) {
	req := services.AnalysisRequest{
		Save:          b.Save,
		PublishReport: b.Publish,
	}

	// An explicit empty list analyzes nothing; only an absent one means all.
	if b.Categories != nil {
		req.Categories = make([]string, 0, len(b.Categories))
	}
	for _, c := range b.Categories {
		c = sanitizeInput(c)
		if c == "" {
			return req, errors.New("categories must not contain empty names")
		}
		req.Categories = append(req.Categories, c)
	}

	if len(b.Selections) > 0 {
		req.Selections = overlap.Selections{}
	}
	for _, s := range b.Selections {
		s.Category = sanitizeInput(s.Category)
		if err := validateSelection(s); err != nil {
			return req, err
		}
		req.Selections.Keep(s.Category, s.GroupID, cleanIDs(s.Kept)...)
	}
	return req, nil
}

// ParseSelectionBody validates the body of PUT /api/selections.
func ParseSelectionBody(s SelectionBody) (SelectionBody, error) {
	s.Category = sanitizeInput(s.Category)
	if err := validateSelection(s); err != nil {
		return s, err
	}
	s.Kept = cleanIDs(s.Kept)
	return s, nil
}

// ParseSelectionQuery reads category and group_id from the query string.
func ParseSelectionQuery(q url.Values) (overlap.GroupKey, error) {
	key := overlap.GroupKey{Category: sanitizeInput(q.Get("category"))}
	if key.Category == "" {
		return key, errors.New("category is required")
	}
	raw := strings.TrimSpace(q.Get("group_id"))
	if raw == "" {
		return key, errors.New("group_id is required")
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return key, fmt.Errorf("invalid group_id %q: must be a positive integer", raw)
	}
	key.GroupID = id
	return key, nil
}

func validateSelection(s SelectionBody) error {
	if s.Category == "" {
		return errors.New("selection category is required")
	}
	if s.GroupID < 1 {
		return fmt.Errorf("invalid group_id %d: must be a positive integer", s.GroupID)
	}
	return nil
}

// cleanIDs trims ids and drops blanks. The result is never nil so an empty
// list stays an explicit "keep none".
func cleanIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = sanitizeInput(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
