package client

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/menta2k/landmark-classifier/pkg/types"
)

var (
	reBlockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment   = regexp.MustCompile(`(?m)^\s*//.*$`)
	reInlineComment = regexp.MustCompile(`(?m)//.*$`)
	reTrailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

type labelsResponse struct {
	Labels []types.Label `json:"labels"`
}

// ParseLabels extracts labels from a model reply. Replies that carry no usable
// JSON yield an empty list rather than an error.
func ParseLabels(raw string) []types.Label {
	raw = SanitizeModelJSON(raw)
	if !strings.HasPrefix(raw, "{") {
		return []types.Label{}
	}

	var resp labelsResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return []types.Label{}
	}
	if resp.Labels == nil {
		return []types.Label{}
	}
	return resp.Labels
}

// SanitizeModelJSON removes code fences, comments, and trailing commas from a model reply
func SanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reInlineComment.ReplaceAllString(raw, "")
	raw = reTrailingComma.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
