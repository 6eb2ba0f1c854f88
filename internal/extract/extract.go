// Package extract pulls structured JSON out of free-form model output. Model
// responses arrive wrapped in markdown fences, prefixed with prose, or
// slightly malformed; these helpers recover what they can and report what
// they cannot in a form worth logging.
package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Objects parses line-delimited JSON objects, skipping blank lines and fence
// markers. Lines that are not valid JSON objects are dropped and counted so
// the caller can log how lossy the response was.
func Objects(raw string) ([]json.RawMessage, int) {
	var objects []json.RawMessage
	dropped := 0
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		if !strings.HasPrefix(line, "{") || !json.Valid([]byte(line)) {
			dropped++
			continue
		}
		objects = append(objects, json.RawMessage(line))
	}
	return objects, dropped
}

// ExtractError describes why no JSON document could be recovered. The
// preview and shape flags make the failure diagnosable from logs alone.
type ExtractError struct {
	Tag          string `json:"error"`
	Message      string `json:"message"`
	InputLen     int    `json:"response_length"`
	Preview      string `json:"response_preview"`
	HasFence     bool   `json:"contains_code_fence"`
	HasJSONStart bool   `json:"contains_json_start"`
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("%s: %s (len=%d)", e.Tag, e.Message, e.InputLen)
}

func newExtractError(tag, msg, raw string) *ExtractError {
	preview := raw
	if len(preview) > 300 {
		preview = preview[:300]
	}
	return &ExtractError{
		Tag:          tag,
		Message:      msg,
		InputLen:     len(raw),
		Preview:      preview,
		HasFence:     strings.Contains(raw, "```"),
		HasJSONStart: strings.ContainsAny(raw, "{["),
	}
}

var (
	fencedBlockRe   = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)```")
	trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)
	repeatedCommaRe = regexp.MustCompile(`,{2,}`)
	openStringRe    = regexp.MustCompile(`(?m)": "([^"\n]*)$`)
)

// Document recovers a single JSON document from a model response. It prefers
// the last fenced code block, falls back to the widest brace-to-brace slice,
// strips control characters and applies a fixed sequence of syntax repairs
// before giving up.
func Document(raw string) ([]byte, *ExtractError) {
	if strings.TrimSpace(raw) == "" {
		return nil, newExtractError("empty_response", "response contains no text", raw)
	}

	candidate := ""
	if matches := fencedBlockRe.FindAllStringSubmatch(raw, -1); len(matches) > 0 {
		// Models sometimes emit an explanation block before the real
		// answer; the last fenced block is the one that matters.
		candidate = matches[len(matches)-1][1]
	} else {
		start := strings.IndexAny(raw, "{[")
		if start < 0 {
			return nil, newExtractError("no_json_found",
				"response contains neither a code fence nor a JSON start", raw)
		}
		end := strings.LastIndexAny(raw, "}]")
		if end <= start {
			return nil, newExtractError("no_json_found",
				"response has a JSON start but no matching close", raw)
		}
		candidate = raw[start : end+1]
	}

	candidate = stripControl(strings.TrimSpace(candidate))
	if json.Valid([]byte(candidate)) {
		return []byte(candidate), nil
	}

	// Repairs run in order with a parse attempt after each, stopping at
	// the first valid document. Later repairs are blunter than earlier
	// ones (the comma collapse rewrites string content), so a document a
	// cheap repair already fixed must not reach them.
	repaired := candidate
	for _, fix := range repairs {
		repaired = fix(repaired)
		if json.Valid([]byte(repaired)) {
			return []byte(repaired), nil
		}
	}

	return nil, newExtractError("invalid_json",
		"document is not valid JSON after repairs", raw)
}

// repairs are ordered: trailing commas before a closing bracket, runs of
// commas, then a string value left unterminated at end of line (a common
// truncation artifact).
var repairs = []func(string) string{
	func(s string) string { return trailingCommaRe.ReplaceAllString(s, "$1") },
	func(s string) string { return repeatedCommaRe.ReplaceAllString(s, ",") },
	func(s string) string { return openStringRe.ReplaceAllString(s, `": "$1"`) },
}

// stripControl removes control characters that break the JSON scanner while
// keeping newlines and tabs, which are legal between tokens.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\r' {
			return r
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, s)
}
