package shell

import "strings"

// lexer splits a script into tokens. Word tokens carry their raw source
// text (quotes and expansions intact); parseWordText later breaks that text
// into WordParts.
type lexer struct {
	src []rune
	pos int
}

func newLexer(src string) *lexer {
	return &lexer{src: []rune(src)}
}

func (l *lexer) peek() rune {
	if l.pos >= len(l.src) {
		return 0
	}

	return l.src[l.pos]
}

func (l *lexer) peekAt(offset int) rune {
	if l.pos+offset >= len(l.src) {
		return 0
	}

	return l.src[l.pos+offset]
}

func (l *lexer) advance() rune {
	r := l.peek()
	l.pos++

	return r
}

func isBlank(r rune) bool {
	return r == ' ' || r == '\t'
}

func isWordBreak(r rune) bool {
	switch r {
	case 0, ' ', '\t', '\n', '|', '&', ';', '(', ')', '<', '>':
		return true
	default:
		return false
	}
}

// tokenize reads the whole script into a token slice terminated by tokEOF.
func (l *lexer) tokenize() []token {
	var toks []token

	for {
		l.skipBlanksAndComments()

		if l.pos >= len(l.src) {
			toks = append(toks, token{kind: tokEOF})

			return toks
		}

		r := l.peek()

		switch {
		case r == '\n':
			l.advance()
			toks = append(toks, token{kind: tokNewline})
		case r == ';':
			l.advance()
			toks = append(toks, token{kind: tokSemi})
		case r == '(':
			l.advance()
			toks = append(toks, token{kind: tokLParen})
		case r == ')':
			l.advance()
			toks = append(toks, token{kind: tokRParen})
		case r == '|':
			l.advance()

			if l.peek() == '|' {
				l.advance()
				toks = append(toks, token{kind: tokOr})
			} else {
				toks = append(toks, token{kind: tokPipe})
			}
		case r == '&':
			l.advance()

			if l.peek() == '&' {
				l.advance()
				toks = append(toks, token{kind: tokAnd})
			} else {
				toks = append(toks, token{kind: tokAmp})
			}
		case r == '<':
			l.advance()

			if l.peek() == '<' && l.peekAt(1) == '<' {
				l.advance()
				l.advance()
				toks = append(toks, token{kind: tokTLess})
			} else {
				toks = append(toks, token{kind: tokLess})
			}
		case r == '>':
			l.advance()

			switch l.peek() {
			case '>':
				l.advance()
				toks = append(toks, token{kind: tokDGreat})
			case '&':
				l.advance()
				toks = append(toks, token{kind: tokDupGreat})
			default:
				toks = append(toks, token{kind: tokGreat})
			}
		case r >= '0' && r <= '9' && (l.peekAt(1) == '<' || l.peekAt(1) == '>'):
			fd := int(l.advance() - '0')
			next := l.tokenize1()
			next.fd = fd
			toks = append(toks, next)
		default:
			word := l.readWord()

			if kw, ok := keywords[word]; ok {
				toks = append(toks, token{kind: kw, raw: word})
			} else {
				toks = append(toks, token{kind: tokWord, raw: word})
			}
		}
	}
}

// tokenize1 reads exactly one redirection operator token, used after an IO
// number prefix like "2>".
func (l *lexer) tokenize1() token {
	r := l.advance()

	switch r {
	case '<':
		if l.peek() == '<' && l.peekAt(1) == '<' {
			l.advance()
			l.advance()

			return token{kind: tokTLess}
		}

		return token{kind: tokLess}
	case '>':
		switch l.peek() {
		case '>':
			l.advance()

			return token{kind: tokDGreat}
		case '&':
			l.advance()

			return token{kind: tokDupGreat}
		default:
			return token{kind: tokGreat}
		}
	default:
		return token{kind: tokWord, raw: string(r)}
	}
}

func (l *lexer) skipBlanksAndComments() {
	for {
		for isBlank(l.peek()) {
			l.advance()
		}

		if l.peek() == '#' {
			for l.peek() != '\n' && l.pos < len(l.src) {
				l.advance()
			}

			continue
		}

		break
	}
}

// readWord consumes one shell word, preserving quotes and any $(...),
// ${...}, `...` expansions verbatim so the parser/word-expander can handle
// nesting correctly.
func (l *lexer) readWord() string {
	var sb strings.Builder

	for l.pos < len(l.src) && !isWordBreak(l.peek()) {
		switch l.peek() {
		case '\'':
			sb.WriteRune(l.advance())

			for l.pos < len(l.src) && l.peek() != '\'' {
				sb.WriteRune(l.advance())
			}

			if l.pos < len(l.src) {
				sb.WriteRune(l.advance())
			}
		case '"':
			sb.WriteString(l.readDoubleQuoted())
		case '`':
			sb.WriteString(l.readBacktick())
		case '$':
			sb.WriteString(l.readDollar())
		case '\\':
			sb.WriteRune(l.advance())

			if l.pos < len(l.src) {
				sb.WriteRune(l.advance())
			}
		default:
			sb.WriteRune(l.advance())
		}
	}

	return sb.String()
}

func (l *lexer) readDoubleQuoted() string {
	var sb strings.Builder

	sb.WriteRune(l.advance()) // opening quote

	for l.pos < len(l.src) && l.peek() != '"' {
		switch l.peek() {
		case '\\':
			sb.WriteRune(l.advance())

			if l.pos < len(l.src) {
				sb.WriteRune(l.advance())
			}
		case '$':
			sb.WriteString(l.readDollar())
		case '`':
			sb.WriteString(l.readBacktick())
		default:
			sb.WriteRune(l.advance())
		}
	}

	if l.pos < len(l.src) {
		sb.WriteRune(l.advance()) // closing quote
	}

	return sb.String()
}

func (l *lexer) readBacktick() string {
	var sb strings.Builder

	sb.WriteRune(l.advance())

	for l.pos < len(l.src) && l.peek() != '`' {
		sb.WriteRune(l.advance())
	}

	if l.pos < len(l.src) {
		sb.WriteRune(l.advance())
	}

	return sb.String()
}

// readDollar consumes a $... expansion: $(...), $((...)), ${...}, or a bare
// $name/$special, tracking paren/brace depth so nested parens inside a
// command substitution don't terminate it early.
func (l *lexer) readDollar() string {
	var sb strings.Builder

	sb.WriteRune(l.advance()) // '$'

	switch l.peek() {
	case '(':
		sb.WriteRune(l.advance())

		depth := 1
		for l.pos < len(l.src) && depth > 0 {
			switch l.peek() {
			case '(':
				depth++
			case ')':
				depth--

				if depth == 0 {
					sb.WriteRune(l.advance())

					return sb.String()
				}
			}

			sb.WriteRune(l.advance())
		}

		return sb.String()
	case '{':
		sb.WriteRune(l.advance())

		depth := 1
		for l.pos < len(l.src) && depth > 0 {
			switch l.peek() {
			case '{':
				depth++
			case '}':
				depth--

				if depth == 0 {
					sb.WriteRune(l.advance())

					return sb.String()
				}
			}

			sb.WriteRune(l.advance())
		}

		return sb.String()
	default:
		for l.pos < len(l.src) && (isAlnum(l.peek()) || l.peek() == '_') {
			sb.WriteRune(l.advance())
		}

		if sb.Len() == 1 && l.pos < len(l.src) {
			// A bare special variable like $?, $#, $@, $*, $$, $0-$9.
			switch l.peek() {
			case '?', '#', '@', '*', '$', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9', '!':
				sb.WriteRune(l.advance())
			}
		}

		return sb.String()
	}
}

func isAlnum(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
