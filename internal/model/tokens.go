package model

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Tokenize splits one statement into tokens. Whitespace separates tokens;
// double-quoted segments use Go string syntax and may appear anywhere in a
// token, so name="a b" yields the single token `name=a b`. Tokens are NFC
// normalized.
func Tokenize(line string) ([]string, error) {
	var (
		tokens  []string
		cur     strings.Builder
		inToken bool
	)
	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"':
			end, err := closingQuote(runes, i)
			if err != nil {
				return nil, err
			}
			s, err := strconv.Unquote(string(runes[i : end+1]))
			if err != nil {
				return nil, fmt.Errorf("invalid quoted string %s: %w", string(runes[i:end+1]), err)
			}
			cur.WriteString(s)
			inToken = true
			i = end
		case unicode.IsSpace(r):
			if inToken {
				tokens = append(tokens, norm.NFC.String(cur.String()))
				cur.Reset()
				inToken = false
			}
		default:
			cur.WriteRune(r)
			inToken = true
		}
	}
	if inToken {
		tokens = append(tokens, norm.NFC.String(cur.String()))
	}
	return tokens, nil
}

func closingQuote(runes []rune, start int) (int, error) {
	for j := start + 1; j < len(runes); j++ {
		switch runes[j] {
		case '\\':
			j++
		case '"':
			return j, nil
		}
	}
	return 0, fmt.Errorf("unterminated quoted string starting at column %d", start+1)
}

// Quote returns tok unchanged when it can be read back by Tokenize as a
// single token, and a quoted form otherwise.
func Quote(tok string) string {
	if tok == "" || strings.ContainsFunc(tok, needsQuote) {
		return strconv.Quote(tok)
	}
	return tok
}

// QuotePair renders name=value, quoting only the value.
func QuotePair(p Pair) string {
	return p.Name + "=" + Quote(p.Value)
}

func needsQuote(r rune) bool {
	return unicode.IsSpace(r) || r == '"' || r == '\\' || !unicode.IsPrint(r)
}

func splitPair(tok string) (Pair, bool) {
	i := strings.IndexByte(tok, '=')
	if i <= 0 {
		return Pair{}, false
	}
	return Pair{Name: tok[:i], Value: tok[i+1:]}, true
}

func isPair(tok string) bool {
	return strings.IndexByte(tok, '=') > 0
}
