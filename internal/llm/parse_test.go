package llm

import (
	"testing"
)

func TestParseAssessment_Plain(t *testing.T) {
	result := ParseAssessment(`{"score": 8, "issues": ["minor wording"], "suggestion": "tweak it", "summary": "good"}`)

	if result.Score != 8 {
		t.Errorf("expected score 8, got %d", result.Score)
	}
	if len(result.Issues) != 1 || result.Issues[0] != "minor wording" {
		t.Errorf("unexpected issues: %v", result.Issues)
	}
	if result.Suggestion != "tweak it" {
		t.Errorf("unexpected suggestion: %q", result.Suggestion)
	}
}

func TestParseAssessment_FencedJSON(t *testing.T) {
	content := "```json\n{\"score\":8,\"issues\":[],\"suggestion\":\"\",\"summary\":\"ok\"}\n```"

	result := ParseAssessment(content)
	if result.Score != 8 {
		t.Errorf("expected score 8, got %d", result.Score)
	}
	if result.Summary != "ok" {
		t.Errorf("expected summary 'ok', got %q", result.Summary)
	}
}

func TestParseAssessment_BareFence(t *testing.T) {
	content := "```\n{\"score\": 3, \"issues\": [\"mistranslation\"], \"suggestion\": \"redo\", \"summary\": \"poor\"}\n```"

	result := ParseAssessment(content)
	if result.Score != 3 {
		t.Errorf("expected score 3, got %d", result.Score)
	}
}

func TestParseAssessment_NotJSON(t *testing.T) {
	result := ParseAssessment("not json")

	if result.Score != 0 {
		t.Errorf("expected degraded score 0, got %d", result.Score)
	}
	if result.Suggestion != "not json" {
		t.Errorf("expected raw content in suggestion, got %q", result.Suggestion)
	}
	if len(result.Issues) == 0 {
		t.Error("expected a format-error issue")
	}
}

func TestParseAssessment_MissingField(t *testing.T) {
	// No summary: must degrade, not half-parse.
	result := ParseAssessment(`{"score": 8, "issues": [], "suggestion": ""}`)

	if result.Score != 0 {
		t.Errorf("expected degraded score 0, got %d", result.Score)
	}
}

func TestParseAssessment_Coercion(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantScore int
		wantIssue string
	}{
		{
			name:      "score as string",
			content:   `{"score": "7", "issues": [], "suggestion": "", "summary": "s"}`,
			wantScore: 7,
		},
		{
			name:      "score as float",
			content:   `{"score": 6.0, "issues": [], "suggestion": "", "summary": "s"}`,
			wantScore: 6,
		},
		{
			name:      "issues as bare string",
			content:   `{"score": 5, "issues": "one single issue", "suggestion": "", "summary": "s"}`,
			wantScore: 5,
			wantIssue: "one single issue",
		},
		{
			name:      "issues with non-string elements",
			content:   `{"score": 5, "issues": [42], "suggestion": "", "summary": "s"}`,
			wantScore: 5,
			wantIssue: "42",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseAssessment(tt.content)
			if result.Score != tt.wantScore {
				t.Errorf("score = %d, want %d", result.Score, tt.wantScore)
			}
			if tt.wantIssue != "" {
				if len(result.Issues) != 1 || result.Issues[0] != tt.wantIssue {
					t.Errorf("issues = %v, want [%q]", result.Issues, tt.wantIssue)
				}
			}
		})
	}
}

func TestParseAssessment_UnparseableScoreDegrades(t *testing.T) {
	result := ParseAssessment(`{"score": "excellent", "issues": [], "suggestion": "", "summary": "s"}`)

	if result.Score != 0 {
		t.Errorf("expected degraded result, got score %d", result.Score)
	}
}

func TestParseBatch_NotAnArray(t *testing.T) {
	if _, ok := parseBatch(`{"score": 8}`, 1); ok {
		t.Error("expected rejection for non-array payload")
	}
}

func TestParseBatch_ElementMissingField(t *testing.T) {
	body := `[{"id": 1, "score": 8, "issues": [], "suggestion": ""}]`
	if _, ok := parseBatch(body, 1); ok {
		t.Error("expected rejection when an element lacks required fields")
	}
}

func TestParseBatch_SortsByID(t *testing.T) {
	body := `[
		{"id": 3, "score": 3, "issues": [], "suggestion": "", "summary": "c"},
		{"id": 1, "score": 1, "issues": [], "suggestion": "", "summary": "a"},
		{"id": 2, "score": 2, "issues": [], "suggestion": "", "summary": "b"}
	]`

	results, ok := parseBatch(body, 3)
	if !ok {
		t.Fatal("expected acceptance")
	}
	for i, want := range []string{"a", "b", "c"} {
		if results[i].Summary != want {
			t.Errorf("results[%d].Summary = %q, want %q", i, results[i].Summary, want)
		}
	}
}
