package security

import (
	"strings"
	"testing"
)

func TestSanitizeText(t *testing.T) {
	sanitizer := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"空文字列", "", ""},
		{"プレーンテキストはそのまま", "Page One", "Page One"},
		{"日本語", "山田 太郎", "山田 太郎"},
		{"アンパサンドは二重エスケープしない", "Tom & Jerry", "Tom & Jerry"},
		{"タグを除去", "<b>Bold</b> Page", "Bold Page"},
		{"scriptを中身ごと除去", `Page<script>alert("x")</script>`, "Page"},
		{"属性付きタグ", `<img src=x onerror=alert(1)>Name`, "Name"},
		{"前後の空白を除去", "  Page  ", "Page"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizer.SanitizeText(tt.input); got != tt.want {
				t.Errorf("SanitizeText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestSanitizeText_NoTagsSurvive はXSSペイロードからタグが残らないことを検証する。
func TestSanitizeText_NoTagsSurvive(t *testing.T) {
	sanitizer := NewTextSanitizer()

	payloads := []string{
		`<svg onload=alert(1)>`,
		`<iframe src="javascript:alert(1)"></iframe>`,
		`<a href="javascript:alert(1)">click</a>`,
		`<body onload=alert(1)>`,
	}

	for _, p := range payloads {
		got := sanitizer.SanitizeText(p)
		if strings.Contains(got, "<") && strings.Contains(got, ">") {
			t.Errorf("SanitizeText(%q) = %q, タグが残っている", p, got)
		}
	}
}

// TestSanitizeText_Idempotent は同一入力に対して同一出力を返すことを検証する。
func TestSanitizeText_Idempotent(t *testing.T) {
	sanitizer := NewTextSanitizer()
	input := "<em>Page</em> & Co."

	first := sanitizer.SanitizeText(input)
	second := sanitizer.SanitizeText(first)
	if first != second {
		t.Errorf("not idempotent: %q -> %q", first, second)
	}
}

func TestTextSanitizerInterface(t *testing.T) {
	var _ TextSanitizerService = NewTextSanitizer()
}
