package sanitize

import (
	"testing"
)

func TestText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"CRLF", "line1\r\nline2", "line1\nline2"},
		{"CR", "line1\rline2", "line1\nline2"},
		{"zero-width space", "total\u200B sales?", "total sales?"},
		{"BOM", "\uFEFFhow many rows?", "how many rows?"},
		{"soft hyphen", "reve\u00ADnue", "revenue"},
		{"multiple spaces", "which   region  sold most?", "which region sold most?"},
		{"tabs", "q1\t\tq2", "q1 q2"},
		{"multiple newlines", "line1\n\n\nline2", "line1\nline2"},
		{"trim", "  question  ", "question"},
		{"combined", "  total\r\n  sales  in\u200B Q1?  ", "total\n sales in Q1?"},
		{"empty", "", ""},
		{"only whitespace", "   \t\t   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Text(tt.input); got != tt.expected {
				t.Errorf("Text(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestField(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "sales.xlsx", "sales.xlsx"},
		{"surrounding whitespace", "  sales.xlsx  ", "sales.xlsx"},
		{"invisible chars", "sales\u200B.xlsx\uFEFF", "sales.xlsx"},
		{"inner spacing kept", "Sales  Q1.xlsx", "Sales  Q1.xlsx"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Field(tt.input); got != tt.expected {
				t.Errorf("Field(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
