package action

import "strings"

// The legacy payload is the stringified action dict of the execution layer:
//
//	{'action_type': <ActionType.CLICK: 1>, 'element_id': '17', 'url': None, 'fill_text': ''}
//
// It is read as a flat token stream and scanned for pairs of the form
//
//	pair  := key ':' value
//	key   := quoted
//	value := enum | int | quoted
//	enum  := '<' ... '>'
//
// Everything else (braces, commas, None, nested text) is ignored.

type tokenKind int

const (
	tokOther tokenKind = iota
	tokQuoted
	tokEnum
	tokInt
	tokColon
)

type token struct {
	kind tokenKind
	text string
}

func lex(s string) []token {
	var toks []token
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '\'' || c == '"':
			text, n, ok := scanQuoted(s[i:])
			if !ok {
				toks = append(toks, token{kind: tokOther, text: s[i : i+1]})
				i++
				continue
			}
			toks = append(toks, token{kind: tokQuoted, text: text})
			i += n
		case c == '<':
			end := strings.IndexByte(s[i+1:], '>')
			if end < 0 {
				toks = append(toks, token{kind: tokOther, text: s[i : i+1]})
				i++
				continue
			}
			toks = append(toks, token{kind: tokEnum, text: s[i+1 : i+1+end]})
			i += end + 2
		case c == ':':
			toks = append(toks, token{kind: tokColon, text: ":"})
			i++
		case isDigit(c) || (c == '-' && i+1 < len(s) && isDigit(s[i+1])):
			j := i + 1
			for j < len(s) && isDigit(s[j]) {
				j++
			}
			toks = append(toks, token{kind: tokInt, text: s[i:j]})
			i = j
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		default:
			toks = append(toks, token{kind: tokOther, text: s[i : i+1]})
			i++
		}
	}
	return toks
}

// scanQuoted reads a quoted string starting at s[0]. Backslash escapes the
// next byte. It returns the unescaped text and the number of bytes consumed.
func scanQuoted(s string) (string, int, bool) {
	q := s[0]
	var b strings.Builder
	for j := 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			if j+1 < len(s) {
				j++
				b.WriteByte(s[j])
			}
		case q:
			return b.String(), j + 1, true
		default:
			b.WriteByte(s[j])
		}
	}
	return "", 0, false
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// pairs extracts key/value pairs for the requested keys. Later occurrences of
// a key win.
func pairs(toks []token, keys ...string) map[string]token {
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	out := make(map[string]token)
	for i := 0; i+2 < len(toks); i++ {
		if toks[i].kind != tokQuoted || toks[i+1].kind != tokColon || !want[toks[i].text] {
			continue
		}
		switch v := toks[i+2]; v.kind {
		case tokQuoted, tokEnum, tokInt:
			out[toks[i].text] = v
		}
	}
	return out
}
