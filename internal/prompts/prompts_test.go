package prompts

import (
	"strings"
	"testing"

	"github.com/valpere/perevir/internal"
)

func TestNames(t *testing.T) {
	names := Names()
	if len(names) != 4 {
		t.Fatalf("expected 4 builtin templates, got %d", len(names))
	}
	for _, want := range []string{"accuracy", "comprehensive", "fluency", "terminology"} {
		if _, ok := Get(want); !ok {
			t.Errorf("missing builtin template %q", want)
		}
	}
}

func TestGet_Unknown(t *testing.T) {
	if _, ok := Get("does-not-exist"); ok {
		t.Error("expected lookup failure")
	}
}

func TestBuiltinTemplatesCarryTokens(t *testing.T) {
	for _, name := range Names() {
		tpl, _ := Get(name)
		if !strings.Contains(tpl.User, "{source_text}") || !strings.Contains(tpl.User, "{target_text}") {
			t.Errorf("template %q is missing substitution tokens", name)
		}
		if tpl.System == "" {
			t.Errorf("template %q has no system prompt", name)
		}
	}
}

func TestResolve(t *testing.T) {
	got := Resolve("S: {source_text} T: {target_text}", "hello", "привіт")
	want := "S: hello T: привіт"
	if got != want {
		t.Errorf("Resolve = %q, want %q", got, want)
	}
}

func TestResolve_LiteralBracesInTexts(t *testing.T) {
	// Braces in the row text must pass through untouched; substitution is
	// plain text replacement, not format evaluation.
	got := Resolve("{source_text} / {target_text}", "x {y} z", "{target_text}")
	want := "x {y} z / {target_text}"
	if got != want {
		t.Errorf("Resolve = %q, want %q", got, want)
	}
}

func TestBatchUser(t *testing.T) {
	entries := []internal.Entry{
		{Row: 2, Source: "one", Target: "один"},
		{Row: 5, Source: "two", Target: "два"},
	}

	prompt := BatchUser(entries)

	if !strings.Contains(prompt, "exactly 2 objects") {
		t.Errorf("expected element count in prompt, got:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Item 1") || !strings.Contains(prompt, "Item 2") {
		t.Errorf("expected numbered items, got:\n%s", prompt)
	}
	if !strings.Contains(prompt, "один") || !strings.Contains(prompt, "два") {
		t.Error("expected row texts in prompt")
	}
}
