package auth

import "strings"

// NormalizeLogin folds a login name to uppercase, unless it is a
// double-quoted identifier: then embedded doubled quotes are unescaped
// and the value is used verbatim up to the first unmatched quote.
func NormalizeLogin(login string) string {
	if len(login) < 2 || login[0] != '"' {
		return strings.ToUpper(login)
	}

	var b strings.Builder
	for i := 1; i < len(login); i++ {
		c := login[i]
		if c == '"' {
			if i+1 < len(login) && login[i+1] == '"' {
				b.WriteByte('"')
				i++
				continue
			}
			break
		}
		b.WriteByte(c)
	}
	return b.String()
}
