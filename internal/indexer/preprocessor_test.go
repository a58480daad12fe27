package indexer

import "testing"

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapses whitespace", "  Deep \t\n learning  ", "Deep learning"},
		{"drops C0 controls", "Graph\x00 neural\x1b nets\x07", "Graph neural nets"},
		{"drops C1 controls", "\u009bEscaped\u0080 title", "Escaped title"},
		{"next line is whitespace", "line one\u0085line two", "line one line two"},
		{"replaces invalid utf-8", "bad \xff byte", "bad \uFFFD byte"},
		{"drops invisible runes", "\ufeffsoft\u00adhyphen zero\u200bwidth", "softhyphen zerowidth"},
		{"keeps non-ascii text", "Café über naïve 都市", "Café über naïve 都市"},
		{"control only", "\x00\x01", ""},
		{"leading control before space", "\x00  Title", "Title"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanText(tt.in); got != tt.want {
				t.Errorf("CleanText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
