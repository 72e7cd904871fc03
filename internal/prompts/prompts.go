// Package prompts holds the builtin QA prompt templates and the literal
// placeholder substitution used to build per-row user prompts.
package prompts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/valpere/perevir/internal"
)

// Template is one named prompt pair. User contains the literal tokens
// {source_text} and {target_text}.
type Template struct {
	Name        string
	Description string
	System      string
	User        string
}

// systemPrompt demands the strict JSON shape the llm package parses.
// All builtin templates share it.
const systemPrompt = `You are a professional translation quality reviewer. You will be given a source text and its translation and must assess the translation quality.
Return your analysis strictly in the following JSON format, with no other content:
{
  "score": <integer score from 1 to 10>,
  "issues": [<list of issues found, each a string>],
  "suggestion": "<suggested revision, or 'no changes needed' if the translation is fine>",
  "summary": "<one-sentence overall assessment>"
}

Scoring guide:
- 9-10: accurate, fluent and natural, no notable problems
- 7-8: mostly accurate, a few small issues
- 5-6: noticeable problems, but the core meaning comes through
- 3-4: many errors, comprehension is affected
- 1-2: severely wrong, the meaning is lost`

var builtin = map[string]Template{
	"accuracy": {
		Name:        "accuracy",
		Description: "checks whether the meaning is fully and correctly carried over",
		System:      systemPrompt,
		User: `Perform an ACCURACY check of the following translation, focusing on:
1. Whether the meaning is carried over correctly, with no misreadings
2. Omissions (content present in the source but missing from the translation)
3. Mistranslations (translation contradicting the source)
4. Numbers, dates and proper nouns translated correctly

Source text:
{source_text}

Translation:
{target_text}

Return your analysis in the JSON format.`,
	},
	"terminology": {
		Name:        "terminology",
		Description: "checks whether specialist terms are translated accurately and consistently",
		System:      systemPrompt,
		User: `Perform a TERMINOLOGY check of the following translation, focusing on:
1. Whether specialist terms are translated accurately
2. Whether standard industry renderings are used for common terms
3. Proper nouns (people, places, organizations) translated correctly
4. Appropriate use of abbreviations and short forms

Source text:
{source_text}

Translation:
{target_text}

Return your analysis in the JSON format.`,
	},
	"fluency": {
		Name:        "fluency",
		Description: "checks whether the translation reads naturally in the target language",
		System:      systemPrompt,
		User: `Perform a STYLE AND FLUENCY check of the following translation, focusing on:
1. Whether the translation reads naturally and idiomatically
2. Sentence structure, and any calques from the source language
3. Word choice: is it natural and appropriate
4. Grammar and punctuation
5. Whether tone and register match the source

Source text:
{source_text}

Translation:
{target_text}

Return your analysis in the JSON format.`,
	},
	"comprehensive": {
		Name:        "comprehensive",
		Description: "assesses accuracy, terminology, fluency and style together",
		System:      systemPrompt,
		User: `Perform a COMPREHENSIVE quality assessment of the following translation across these dimensions:
1. Accuracy: meaning carried over correctly, no omissions or mistranslations
2. Terminology: specialist terms and proper nouns translated accurately
3. Fluency: natural, idiomatic phrasing in the target language
4. Style: tone and register matching the source
5. Grammar: correct grammar and punctuation

Source text:
{source_text}

Translation:
{target_text}

Return your analysis in the JSON format, listing issues per dimension in the issues array.`,
	},
}

// Names returns the builtin template names, sorted.
func Names() []string {
	names := make([]string, 0, len(builtin))
	for name := range builtin {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns a builtin template by name.
func Get(name string) (Template, bool) {
	tpl, ok := builtin[name]
	return tpl, ok
}

// Resolve substitutes the {source_text} and {target_text} tokens by literal
// replacement, never format evaluation, so braces inside the texts are
// harmless.
func Resolve(userTemplate, source, target string) string {
	return strings.NewReplacer(
		"{source_text}", source,
		"{target_text}", target,
	).Replace(userTemplate)
}

// BatchUser builds one user prompt covering several rows at once. Each row
// becomes a numbered item; the model is told to answer with a JSON array
// whose elements carry the item number as "id", which is what
// llm.CallBatch validates against.
func BatchUser(entries []internal.Entry) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, `Assess each of the following %d source/translation pairs independently.
Return a JSON array with exactly %d objects, one per item, each of the form:
{"id": <item number>, "score": <integer 1-10>, "issues": [<strings>], "suggestion": "<string>", "summary": "<string>"}
Return only the JSON array, no other content.

`, len(entries), len(entries))

	for i, entry := range entries {
		fmt.Fprintf(&sb, "Item %d\nSource text:\n%s\n\nTranslation:\n%s\n\n", i+1, entry.Source, entry.Target)
	}

	return strings.TrimSpace(sb.String())
}
