package auth

import "testing"

// TestNormalizeLogin covers the quoted-identifier and case-folding
// rules.
func TestNormalizeLogin(t *testing.T) {
	tests := []struct {
		name  string
		login string
		want  string
	}{
		{"plain login uppercased", "sysdba", "SYSDBA"},
		{"mixed case uppercased", "SomeUser", "SOMEUSER"},
		{"quoted verbatim", `"CaseSensitive"`, "CaseSensitive"},
		{"escaped quotes unescaped", `"""Foo""Bar"""`, `"Foo"Bar"`},
		{"truncated at unescaped quote", `"abc"def`, "abc"},
		{"lone quote uppercased", `"`, `"`},
		{"empty", "", ""},
		{"quoted empty", `""`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeLogin(tt.login); got != tt.want {
				t.Errorf("NormalizeLogin(%q) = %q, want %q", tt.login, got, tt.want)
			}
		})
	}
}
