package llm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/valpere/perevir/internal"
	"github.com/valpere/perevir/internal/postprocess"
)

// requiredFields are the keys every accepted assessment object must carry.
var requiredFields = []string{"score", "issues", "suggestion", "summary"}

// ParseAssessment turns raw model output into an AssessmentResult. It never
// fails: fenced wrappers are stripped, fields are coerced, and anything that
// still does not validate degrades to a score-0 result that keeps the raw
// content in Suggestion for inspection.
func ParseAssessment(content string) internal.AssessmentResult {
	payload := postprocess.ExtractJSON(content)

	var raw map[string]any
	if err := json.Unmarshal([]byte(payload), &raw); err == nil {
		if result, ok := assessmentFromMap(raw); ok {
			return result
		}
	}

	return Degraded(content)
}

// Degraded is the non-fatal fallback result for unparseable model output.
func Degraded(raw string) internal.AssessmentResult {
	return internal.AssessmentResult{
		Score:      0,
		Issues:     []string{"format error, unparseable"},
		Suggestion: raw,
		Summary:    "model response could not be parsed; raw output kept in the suggestion column",
	}
}

// parseBatch validates a batch response: a JSON array of exactly expected
// objects, each an assessment additionally carrying an integer id. Elements
// are returned ordered ascending by id. Any shape mismatch reports !ok; the
// caller falls back to per-row calls.
func parseBatch(content string, expected int) ([]internal.AssessmentResult, bool) {
	payload := postprocess.ExtractJSON(content)

	var raws []map[string]any
	if err := json.Unmarshal([]byte(payload), &raws); err != nil {
		return nil, false
	}
	if len(raws) != expected {
		return nil, false
	}

	type elem struct {
		id     int
		result internal.AssessmentResult
	}

	elems := make([]elem, 0, expected)
	for _, raw := range raws {
		id, ok := coerceInt(raw["id"])
		if !ok {
			return nil, false
		}
		result, ok := assessmentFromMap(raw)
		if !ok {
			return nil, false
		}
		elems = append(elems, elem{id: id, result: result})
	}

	sort.Slice(elems, func(i, j int) bool { return elems[i].id < elems[j].id })

	results := make([]internal.AssessmentResult, len(elems))
	for i, e := range elems {
		results[i] = e.result
	}
	return results, true
}

func assessmentFromMap(raw map[string]any) (internal.AssessmentResult, bool) {
	for _, field := range requiredFields {
		if _, ok := raw[field]; !ok {
			return internal.AssessmentResult{}, false
		}
	}

	score, ok := coerceInt(raw["score"])
	if !ok {
		return internal.AssessmentResult{}, false
	}

	return internal.AssessmentResult{
		Score:      score,
		Issues:     coerceStringList(raw["issues"]),
		Suggestion: coerceString(raw["suggestion"]),
		Summary:    coerceString(raw["summary"]),
	}, true
}

func coerceInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	default:
		return 0, false
	}
}

func coerceStringList(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return []string{coerceString(v)}
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		out = append(out, coerceString(item))
	}
	return out
}

func coerceString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
