package detector

import (
	"testing"
)

func TestDetector_DetectISO(t *testing.T) {
	d := New()

	tests := []struct {
		name     string
		text     string
		wantCode string
		wantOK   bool
	}{
		{
			name:     "empty text",
			text:     "",
			wantCode: "",
			wantOK:   false,
		},
		{
			name:     "english text",
			text:     "Hello, this is a test in English.",
			wantCode: "EN",
			wantOK:   true,
		},
		{
			name:     "chinese text",
			text:     "这是一个中文测试句子，用来验证语言检测。",
			wantCode: "ZH",
			wantOK:   true,
		},
		{
			name:     "ukrainian text",
			text:     "Привіт, це тест українською мовою.",
			wantCode: "UK",
			wantOK:   true,
		},
		{
			name:     "german text",
			text:     "Hallo, das ist ein Test auf Deutsch.",
			wantCode: "DE",
			wantOK:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, ok := d.DetectISO(tt.text)
			if ok != tt.wantOK {
				t.Errorf("DetectISO(%q) ok = %v, want %v", tt.text, ok, tt.wantOK)
				return
			}
			if tt.wantOK && code != tt.wantCode {
				t.Errorf("DetectISO(%q) = %q, want %q", tt.text, code, tt.wantCode)
			}
		})
	}
}

func TestDetector_SampleISO(t *testing.T) {
	d := New()

	texts := []string{
		"The quick brown fox jumps over the lazy dog.",
		"Hi", // too short, skipped
		"This is clearly an English sentence with several words.",
		"Weather forecasts predict rain for the whole weekend.",
	}

	code, ok := d.SampleISO(texts, 10)
	if !ok {
		t.Fatal("expected a detected language")
	}
	if code != "EN" {
		t.Errorf("expected EN, got %q", code)
	}
}

func TestDetector_SampleISO_Empty(t *testing.T) {
	d := New()

	if _, ok := d.SampleISO(nil, 5); ok {
		t.Error("expected no detection for empty input")
	}
	if _, ok := d.SampleISO([]string{"", "ab"}, 5); ok {
		t.Error("expected no detection for too-short samples")
	}
}
