package model

import (
	"testing"
)

func TestParseDoi_StripsSchemePrefixes(t *testing.T) {
	tests := []struct {
		raw  string
		want Doi
	}{
		{"10.1371/journal.pone.0000001", "10.1371/journal.pone.0000001"},
		{"info:doi/10.1371/journal.pone.0000001", "10.1371/journal.pone.0000001"},
		{"INFO:DOI/10.1371/journal.pone.0000001", "10.1371/journal.pone.0000001"},
		{"doi:10.1371/journal.pone.0000001", "10.1371/journal.pone.0000001"},
		{"https://doi.org/10.1371/journal.pone.0000001", "10.1371/journal.pone.0000001"},
		{"http://dx.doi.org/10.1371/journal.pone.0000001", "10.1371/journal.pone.0000001"},
		{"  10.1371/x  ", "10.1371/x"},
	}

	for _, tt := range tests {
		got, err := ParseDoi(tt.raw)
		if err != nil {
			t.Fatalf("ParseDoi(%q) returned error: %v", tt.raw, err)
		}
		if got != tt.want {
			t.Errorf("ParseDoi(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

// 本体部分の大文字小文字は保持されること
func TestParseDoi_PreservesCase(t *testing.T) {
	got, err := ParseDoi("info:doi/10.1371/Journal.PONE.0000001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "10.1371/Journal.PONE.0000001" {
		t.Errorf("ParseDoi = %q, want case preserved", got)
	}
	if got == MustParseDoi("10.1371/journal.pone.0000001") {
		t.Error("Doi comparison should be case-sensitive")
	}
}

func TestParseDoi_RejectsEmpty(t *testing.T) {
	for _, raw := range []string{"", "   ", "info:doi/", "10.1371/a b"} {
		if _, err := ParseDoi(raw); err == nil {
			t.Errorf("ParseDoi(%q) should return error", raw)
		}
	}
}

func TestDoi_Suffix(t *testing.T) {
	tests := []struct {
		doi  Doi
		want string
	}{
		{"10.1371/journal.pone.0000001.g001", "journal.pone.0000001.g001"},
		{"10.1371/journal.pone.0000001", "journal.pone.0000001"},
		{"abc", "abc"},
	}
	for _, tt := range tests {
		if got := tt.doi.Suffix(); got != tt.want {
			t.Errorf("%q.Suffix() = %q, want %q", tt.doi, got, tt.want)
		}
	}
}

func TestDoi_URI(t *testing.T) {
	d := MustParseDoi("10.1371/x")
	if d.URI() != "info:doi/10.1371/x" {
		t.Errorf("URI() = %q, want %q", d.URI(), "info:doi/10.1371/x")
	}
}
