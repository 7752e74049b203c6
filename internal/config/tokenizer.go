package config

import (
	"strings"

	"github.com/pkg/errors"
)

// TokenKind classifies a lexed token from the configuration grammar.
type TokenKind int

const (
	TokenWord TokenKind = iota
	TokenBraceOpen
	TokenBraceClose
	TokenSemicolon
)

// Token is one lexical unit: a word, or one of the structural punctuators.
type Token struct {
	Kind TokenKind
	Text string
	Line int
}

func isWordByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == '-' || b == '_' || b == '.' || b == '/' || b == ':' || b == '?' || b == '=' || b == '&' || b == '%':
		return true
	}
	return false
}

// Tokenize lexes the configuration source into a flat token stream. Comments
// (# to end of line) are dropped.
func Tokenize(src string) ([]Token, error) {
	var tokens []Token
	line := 1
	i := 0
	n := len(src)
	for i < n {
		c := src[i]
		switch {
		case c == '\n':
			line++
			i++
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == '#':
			for i < n && src[i] != '\n' {
				i++
			}
		case c == '{':
			tokens = append(tokens, Token{Kind: TokenBraceOpen, Text: "{", Line: line})
			i++
		case c == '}':
			tokens = append(tokens, Token{Kind: TokenBraceClose, Text: "}", Line: line})
			i++
		case c == ';':
			tokens = append(tokens, Token{Kind: TokenSemicolon, Text: ";", Line: line})
			i++
		case isWordByte(c):
			start := i
			for i < n && isWordByte(src[i]) {
				i++
			}
			tokens = append(tokens, Token{Kind: TokenWord, Text: src[start:i], Line: line})
		default:
			return nil, errors.Errorf("config: unexpected character %q at line %d", c, line)
		}
	}
	return tokens, nil
}

// directiveLine collects the words of one `name args… ;` directive, or the
// words preceding a `{` that opens a block.
type directiveLine struct {
	words []string
	line  int
}

// statement is one entry of a `{ … }` scope (or the top level): either a
// directive line or a nested block. parseBlock groups a token stream into
// these.
type statement struct {
	directive *directiveLine
	block     *block
}

type block struct {
	name string // "server" or "location"
	arg  string // location path, empty for server
	body []statement
	line int
}

func parseBlock(tokens []Token, pos int) (block, int, error) {
	var b block
	for pos < len(tokens) {
		tok := tokens[pos]
		switch tok.Kind {
		case TokenBraceClose:
			return b, pos + 1, nil
		case TokenWord:
			var words []string
			startLine := tok.Line
			for pos < len(tokens) && tokens[pos].Kind == TokenWord {
				words = append(words, tokens[pos].Text)
				pos++
			}
			if pos >= len(tokens) {
				return b, pos, errors.Errorf("config: unterminated directive near line %d", startLine)
			}
			switch tokens[pos].Kind {
			case TokenSemicolon:
				b.body = append(b.body, statement{directive: &directiveLine{words: words, line: startLine}})
				pos++
			case TokenBraceOpen:
				inner, next, err := parseBlock(tokens, pos+1)
				if err != nil {
					return b, next, err
				}
				inner.line = startLine
				if len(words) > 0 {
					inner.name = strings.ToLower(words[0])
				}
				if len(words) > 1 {
					inner.arg = strings.Join(words[1:], " ")
				}
				b.body = append(b.body, statement{block: &inner})
				pos = next
			default:
				return b, pos, errors.Errorf("config: expected ';' or '{' near line %d", startLine)
			}
		default:
			return b, pos, errors.Errorf("config: unexpected token %q at line %d", tok.Text, tok.Line)
		}
	}
	return b, pos, nil
}
