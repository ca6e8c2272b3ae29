package render

import (
	"fmt"
	"strings"
)

// Python literal helpers for the settings template. Output is deterministic
// for identical input.

func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func pyEscape(s string, quote byte) string {
	var sb strings.Builder
	sb.WriteByte(quote)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\':
			sb.WriteString(`\\`)
		case c == quote:
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c == '\n':
			sb.WriteString(`\n`)
		case c == '\r':
			sb.WriteString(`\r`)
		case c == '\t':
			sb.WriteString(`\t`)
		case c < 0x20 || c == 0x7f:
			fmt.Fprintf(&sb, `\x%02x`, c)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte(quote)
	return sb.String()
}

// pyStr is a double-quoted Python string literal.
func pyStr(s string) string { return pyEscape(s, '"') }

// pySQ is a single-quoted Python string literal.
func pySQ(s string) string { return pyEscape(s, '\'') }

func pyList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = pyStr(s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func pyTuple(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = pySQ(s)
	}
	if len(quoted) == 1 {
		return "(" + quoted[0] + ",)"
	}
	return "(" + strings.Join(quoted, ", ") + ")"
}
