package query

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrNotReadOnly = errors.New("only read-only statements are allowed")

var errMultipleStatements = fmt.Errorf("%w: multiple statements are not supported", ErrNotReadOnly)

var dollarTag = regexp.MustCompile(`^\$(?:[A-Za-z_][A-Za-z0-9_]*)?\$`)

var readOnlyPrefixes = []string{
	"SELECT", "WITH", "DESCRIBE", "SHOW", "SUMMARIZE", "EXPLAIN", "VALUES", "PRAGMA TABLE_INFO",
}

// validateStatement strips comments and trailing semicolons and checks that
// what is left is a single read statement. Quoted literals and identifiers
// are copied through untouched.
func validateStatement(sqlText string) (string, error) {
	if strings.TrimSpace(sqlText) == "" {
		return "", ErrEmptyQuery
	}

	stripped, err := stripStatement(sqlText)
	if err != nil {
		return "", err
	}

	clean := strings.TrimSpace(stripped)
	if clean == "" {
		return "", ErrEmptyQuery
	}

	upper := strings.ToUpper(strings.TrimLeft(clean, "( \t\n\r"))
	upper = strings.Join(strings.Fields(upper), " ")
	for _, prefix := range readOnlyPrefixes {
		if strings.HasPrefix(upper, prefix) {
			return clean, nil
		}
	}

	return "", fmt.Errorf("%w, received: %s", ErrNotReadOnly, firstWord(upper))
}

// stripStatement removes comments and statement terminators in one pass.
// Anything other than whitespace or comments after a terminator means a
// second statement.
func stripStatement(sqlText string) (string, error) {
	var b strings.Builder
	terminated := false

	for i := 0; i < len(sqlText); {
		c := sqlText[i]
		rest := sqlText[i:]

		switch {
		case strings.HasPrefix(rest, "--"):
			end := strings.IndexByte(rest, '\n')
			if end < 0 {
				i = len(sqlText)
			} else {
				i += end
			}
			continue
		case strings.HasPrefix(rest, "/*"):
			end := strings.Index(rest[2:], "*/")
			if end < 0 {
				i = len(sqlText)
			} else {
				i += end + 4
			}
			b.WriteByte(' ')
			continue
		case c == ';':
			terminated = true
			i++
			continue
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			b.WriteByte(c)
			i++
			continue
		}

		if terminated {
			return "", errMultipleStatements
		}

		if n := quotedLen(rest); n > 0 {
			b.WriteString(rest[:n])
			i += n
			continue
		}

		b.WriteByte(c)
		i++
	}

	return b.String(), nil
}

// quotedLen returns the length of the quoted literal or identifier at the
// start of s, or 0 when s does not start with one. Unterminated quotes run
// to the end of s.
func quotedLen(s string) int {
	switch s[0] {
	case '\'', '"':
		q := s[0]
		j := 1
		for {
			k := strings.IndexByte(s[j:], q)
			if k < 0 {
				return len(s)
			}
			j += k + 1
			// doubled quote is an escaped quote
			if j < len(s) && s[j] == q {
				j++
				continue
			}
			return j
		}
	case '$':
		tag := dollarTag.FindString(s)
		if tag == "" {
			return 0
		}
		k := strings.Index(s[len(tag):], tag)
		if k < 0 {
			return len(s)
		}
		return len(tag) + k + len(tag)
	}
	return 0
}

func firstWord(s string) string {
	if i := strings.IndexAny(s, " \t\n("); i > 0 {
		return s[:i]
	}
	return s
}
