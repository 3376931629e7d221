package condition

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenNumber
	tokenString
	tokenPath
	tokenTrue
	tokenFalse
	tokenNull
	tokenLParen
	tokenRParen
	tokenAnd
	tokenOr
	tokenNot
	tokenMinus
	tokenEq
	tokenNeq
	tokenStrictEq
	tokenStrictNeq
	tokenGt
	tokenGte
	tokenLt
	tokenLte
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

func (t token) String() string {
	if t.kind == tokenEOF {
		return "end of expression"
	}

	return fmt.Sprintf("%q at %d", t.text, t.pos)
}

// operators ordered so that longer spellings win.
var operators = []struct {
	text string
	kind tokenKind
}{
	{"===", tokenStrictEq},
	{"!==", tokenStrictNeq},
	{"==", tokenEq},
	{"!=", tokenNeq},
	{">=", tokenGte},
	{"<=", tokenLte},
	{"&&", tokenAnd},
	{"||", tokenOr},
	{">", tokenGt},
	{"<", tokenLt},
	{"!", tokenNot},
	{"-", tokenMinus},
	{"(", tokenLParen},
	{")", tokenRParen},
}

func tokenize(input string) ([]token, error) {
	var tokens []token

	i := 0
	for i < len(input) {
		c := rune(input[i])

		switch {
		case unicode.IsSpace(c):
			i++

		case isDigit(c):
			start := i
			for i < len(input) && isDigit(rune(input[i])) {
				i++
			}

			if i < len(input) && input[i] == '.' {
				i++
				for i < len(input) && isDigit(rune(input[i])) {
					i++
				}
			}

			text := input[start:i]

			num, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid number %q at %d", ErrSyntax, text, start)
			}

			tokens = append(tokens, token{kind: tokenNumber, text: text, num: num, pos: start})

		case c == '"' || c == '\'':
			str, next, err := scanString(input, i)
			if err != nil {
				return nil, err
			}

			tokens = append(tokens, token{kind: tokenString, text: str, pos: i})
			i = next

		case isIdentStart(c):
			start := i
			i = scanPath(input, i)
			text := input[start:i]

			if strings.HasSuffix(text, ".") || strings.Contains(text, "..") {
				return nil, fmt.Errorf("%w: malformed path %q at %d", ErrSyntax, text, start)
			}

			tokens = append(tokens, token{kind: keywordKind(text), text: text, pos: start})

		default:
			matched := false

			for _, op := range operators {
				if strings.HasPrefix(input[i:], op.text) {
					tokens = append(tokens, token{kind: op.kind, text: op.text, pos: i})
					i += len(op.text)
					matched = true

					break
				}
			}

			if !matched {
				return nil, fmt.Errorf("%w: unexpected character %q at %d", ErrSyntax, c, i)
			}
		}
	}

	return append(tokens, token{kind: tokenEOF, pos: len(input)}), nil
}

func scanString(input string, start int) (string, int, error) {
	quote := input[start]

	var sb strings.Builder

	i := start + 1
	for i < len(input) {
		c := input[i]

		switch {
		case c == '\\' && i+1 < len(input):
			switch esc := input[i+1]; esc {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				sb.WriteByte(esc)
			}

			i += 2
		case c == quote:
			return sb.String(), i + 1, nil
		default:
			sb.WriteByte(c)
			i++
		}
	}

	return "", 0, fmt.Errorf("%w: unterminated string at %d", ErrSyntax, start)
}

// scanPath consumes a dotted identifier. Segments after the first may start
// with a digit so that list elements can be addressed ("items.0.price").
func scanPath(input string, start int) int {
	i := start
	for i < len(input) {
		c := rune(input[i])
		if isIdentPart(c) || c == '.' {
			i++

			continue
		}

		break
	}

	return i
}

func keywordKind(text string) tokenKind {
	switch text {
	case "true":
		return tokenTrue
	case "false":
		return tokenFalse
	case "null", "undefined":
		return tokenNull
	default:
		return tokenPath
	}
}

func isDigit(c rune) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c rune) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c rune) bool {
	return isIdentStart(c) || isDigit(c)
}
