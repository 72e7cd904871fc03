// Package postprocess extracts machine-readable payloads from raw LLM output.
//
// Chat models asked for strict JSON still tend to wrap it: reasoning models
// prepend <think> blocks, and most models like to fence the payload in
// ```json ... ``` markers. ExtractJSON peels those layers off before the
// result is handed to the JSON decoder.
package postprocess

import (
	"regexp"
	"strings"
)

// thinkingBlockRe matches complete <thinking>…</thinking> style blocks.
// Each tag variant is listed explicitly because Go's RE2 engine does not
// support backreferences.
// Flags: i = case-insensitive, s = dot matches newline.
var thinkingBlockRe = regexp.MustCompile(
	`(?is)<thinking>.*?</thinking>|<think>.*?</think>|<reasoning>.*?</reasoning>|<reflection>.*?</reflection>`,
)

// truncatedThinkingRe matches an opened thinking tag whose closing tag is
// missing (the model was cut off mid-thought).
var truncatedThinkingRe = regexp.MustCompile(
	`(?is)(?:<thinking>|<think>|<reasoning>|<reflection>).*$`,
)

// Clean removes thinking/reasoning blocks and trims the result.
func Clean(text string) string {
	text = thinkingBlockRe.ReplaceAllString(text, "")
	text = truncatedThinkingRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// ExtractJSON returns the JSON payload embedded in raw model output.
// A ```json fenced block wins over a bare ``` block; with no fence the
// cleaned text is returned as-is. It never fails: callers decide what to do
// when the result still is not valid JSON.
func ExtractJSON(text string) string {
	text = Clean(text)

	if start := strings.Index(text, "```json"); start >= 0 {
		rest := text[start+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
	} else if start := strings.Index(text, "```"); start >= 0 {
		rest := text[start+len("```"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
	}

	return text
}
