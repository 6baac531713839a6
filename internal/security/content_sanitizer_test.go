package security

import (
	"strings"
	"testing"
)

// TestSanitize_AllowedInlineElements はインライン書式要素が通過することを検証する。
func TestSanitize_AllowedInlineElements(t *testing.T) {
	sanitizer := NewContentSanitizer()

	tests := []struct {
		name         string
		input        string
		wantContains []string
	}{
		{
			name:         "italicが許可される",
			input:        "Growth of <italic>E. coli</italic> in soil",
			wantContains: []string{"<italic>E. coli</italic>"},
		},
		{
			name:         "subとsupが許可される",
			input:        "H<sub>2</sub>O and x<sup>2</sup>",
			wantContains: []string{"<sub>2</sub>", "<sup>2</sup>"},
		},
		{
			name:         "boldが許可される",
			input:        "<bold>Bold</bold> claim",
			wantContains: []string{"<bold>Bold</bold>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			for _, want := range tt.wantContains {
				if !strings.Contains(got, want) {
					t.Errorf("Sanitize(%q) = %q, expected to contain %q", tt.input, got, want)
				}
			}
		})
	}
}

// TestSanitize_StripsOtherElements は許可外の要素がタグのみ除去されることを検証する。
func TestSanitize_StripsOtherElements(t *testing.T) {
	sanitizer := NewContentSanitizer()

	got := sanitizer.Sanitize(`See <xref ref-type="fig" rid="g001">Figure 1</xref><script>alert(1)</script>`)
	if strings.Contains(got, "xref") {
		t.Errorf("xref tag should be stripped: %q", got)
	}
	if !strings.Contains(got, "Figure 1") {
		t.Errorf("text content should be kept: %q", got)
	}
	if strings.Contains(got, "script") || strings.Contains(got, "alert") {
		t.Errorf("script should be removed: %q", got)
	}
}

// TestSanitize_DropsAttributes は許可要素の属性が除去されることを検証する。
func TestSanitize_DropsAttributes(t *testing.T) {
	sanitizer := NewContentSanitizer()

	got := sanitizer.Sanitize(`<italic toggle="yes" onclick="x()">word</italic>`)
	if strings.Contains(got, "onclick") || strings.Contains(got, "toggle") {
		t.Errorf("attributes should be removed: %q", got)
	}
	if !strings.Contains(got, "word") {
		t.Errorf("text content should be kept: %q", got)
	}
}

// TestSanitize_CollapsesWhitespace は改行や連続空白がまとめられることを検証する。
func TestSanitize_CollapsesWhitespace(t *testing.T) {
	sanitizer := NewContentSanitizer()

	got := sanitizer.Sanitize("  A study\n\t of   things  ")
	if got != "A study of things" {
		t.Errorf("Sanitize = %q, want %q", got, "A study of things")
	}
}

// TestSanitize_Idempotent は同一入力に対して同一出力を返すことを検証する。
func TestSanitize_Idempotent(t *testing.T) {
	sanitizer := NewContentSanitizer()
	input := "Role of <italic>TP53</italic> in <xref>cancer</xref>"

	first := sanitizer.Sanitize(input)
	second := sanitizer.Sanitize(first)
	if first != second {
		t.Errorf("Sanitize is not idempotent: %q != %q", first, second)
	}
}

func TestSanitize_EmptyString(t *testing.T) {
	sanitizer := NewContentSanitizer()
	if got := sanitizer.Sanitize(""); got != "" {
		t.Errorf("Sanitize(\"\") = %q, want empty", got)
	}
}
