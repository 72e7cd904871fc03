// Package detector guesses the language of dataset columns so the CLI can
// warn when the source/target columns of an input file look swapped or
// identical before any API budget is spent on them.
package detector

import (
	lingua "github.com/pemistahl/lingua-go"
)

type Detector struct {
	detector lingua.LanguageDetector
}

func New() *Detector {
	detector := lingua.NewLanguageDetectorBuilder().
		FromAllLanguages().
		Build()

	return &Detector{detector: detector}
}

func (d *Detector) Detect(text string) (lingua.Language, bool) {
	if text == "" {
		return lingua.Unknown, false
	}
	return d.detector.DetectLanguageOf(text)
}

func (d *Detector) DetectISO(text string) (string, bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", false
	}
	return lang.IsoCode639_1().String(), true
}

// SampleISO detects the dominant language across a sample of texts by
// majority vote. Texts shorter than minSampleRunes are skipped because single
// words misdetect too often. Returns false when nothing usable was sampled.
func (d *Detector) SampleISO(texts []string, sampleSize int) (string, bool) {
	const minSampleRunes = 4

	counts := make(map[string]int)
	sampled := 0

	for _, text := range texts {
		if sampled >= sampleSize {
			break
		}
		if len([]rune(text)) < minSampleRunes {
			continue
		}
		if code, ok := d.DetectISO(text); ok {
			counts[code]++
			sampled++
		}
	}

	best := ""
	bestCount := 0
	for code, count := range counts {
		if count > bestCount {
			best = code
			bestCount = count
		}
	}

	if bestCount == 0 {
		return "", false
	}
	return best, true
}
