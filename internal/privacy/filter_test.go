package privacy

import "testing"

func TestRedact(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "no private text",
			input:    "Tribeca lofts",
			expected: "Tribeca lofts",
		},
		{
			name:     "single private tag",
			input:    "Asking $2.1M <private>seller will take $1.9M</private> firm",
			expected: "Asking $2.1M  firm",
		},
		{
			name:     "multiple private tags",
			input:    "a <private>x</private> b <private>y</private> c",
			expected: "a  b  c",
		},
		{
			name:     "multiline private content",
			input:    "before <private>\nlockbox 4412\nalarm 9981\n</private> after",
			expected: "before  after",
		},
		{
			name:     "nested-looking tags",
			input:    "<private>outer <private>inner</private> still</private> visible",
			expected: "still</private> visible",
		},
		{
			name:     "html comment",
			input:    "# Closing costs\n<!-- check 2025 transfer tax rates -->\nBuyers pay mansion tax.",
			expected: "# Closing costs\n\nBuyers pay mansion tax.",
		},
		{
			name:     "blank lines collapse",
			input:    "one\n\n<private>gone</private>\n\n\ntwo",
			expected: "one\n\ntwo",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Redact(tt.input)
			if got != tt.expected {
				t.Errorf("Redact(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestRedactToEmpty(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{"entirely private", "<private>all secret</private>", true},
		{"private and comments", "  <private>a</private> <!-- b -->  ", true},
		{"has public content", "public <private>secret</private>", false},
		{"whitespace only", "   ", true},
		{"no private tags at all", "completely public", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Redact(tt.input) == ""; got != tt.expected {
				t.Errorf("Redact(%q) empty = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}
