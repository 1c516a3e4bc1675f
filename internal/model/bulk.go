package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

// ErrNotArray is returned by DecodeBulk when the payload is not a JSON array
var ErrNotArray = errors.New("bulk payload is not a JSON array")

// DecodeBulk decodes a JSON array of bulk candidates. Candidates are decoded
// leniently: a field of the wrong type is treated as absent so that BuildBulk
// substitutes its default, and an element that is not an object becomes an
// empty candidate.
func DecodeBulk(data []byte) ([]RepoInput, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		return nil, ErrNotArray
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, err
	}

	inputs := make([]RepoInput, 0, len(elems))
	for _, elem := range elems {
		inputs = append(inputs, DecodeBulkCandidate(elem))
	}
	return inputs, nil
}

// DecodeBulkCandidate decodes one bulk candidate, ignoring fields it cannot use
func DecodeBulkCandidate(data json.RawMessage) RepoInput {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return RepoInput{}
	}

	in := RepoInput{
		Name:        lenientString(fields["name"]),
		Tagline:     lenientString(fields["tagline"]),
		Category:    lenientString(fields["category"]),
		Stack:       lenientStrings(fields["stack"]),
		GithubURL:   lenientString(fields["githubUrl"]),
		DeepWikiURL: lenientString(fields["deepWikiUrl"]),
	}
	if v, ok := lenientInt(fields["stars"]); ok {
		in.Stars = &v
	}
	if v, ok := lenientBool(fields["isTopPick"]); ok {
		in.IsTopPick = &v
	}
	if raw := fields["lastUpdated"]; raw != nil {
		var ts Timestamp
		if err := json.Unmarshal(raw, &ts); err == nil {
			in.LastUpdated = &ts
		}
	}
	return in
}

func lenientString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// lenientStrings keeps the string elements of an array; anything else is an empty stack
func lenientStrings(raw json.RawMessage) []string {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return []string{}
	}
	out := make([]string, 0, len(elems))
	for _, e := range elems {
		var s *string
		if err := json.Unmarshal(e, &s); err == nil && s != nil {
			out = append(out, *s)
		}
	}
	return out
}

// lenientInt accepts a JSON number or a numeric string
func lenientInt(raw json.RawMessage) (int, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		if f, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return 0, false
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}

// lenientBool accepts a JSON boolean or the strings "true" and "false"
func lenientBool(raw json.RawMessage) (bool, bool) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false, false
	}
	switch strings.TrimSpace(s) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}
