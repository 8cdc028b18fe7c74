package shell

import "strings"

// wordParser turns the raw text of one lexed word (quotes and expansions
// still intact) into a Word made of typed WordParts.
type wordParser struct {
	src []rune
	pos int
}

// parseWordText parses the raw text of a single lexed word into a Word.
func parseWordText(raw string) (*Word, error) {
	wp := &wordParser{src: []rune(raw)}

	parts, err := wp.parseParts(false)
	if err != nil {
		return nil, err
	}

	return &Word{Parts: parts}, nil
}

func (wp *wordParser) peek() rune {
	if wp.pos >= len(wp.src) {
		return 0
	}

	return wp.src[wp.pos]
}

func (wp *wordParser) advance() rune {
	r := wp.peek()
	wp.pos++

	return r
}

// parseParts consumes parts until end of input, or (when inDouble is true)
// until a closing unescaped double quote.
func (wp *wordParser) parseParts(inDouble bool) ([]WordPart, error) {
	var parts []WordPart

	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			parts = append(parts, &Literal{Text: lit.String(), Quoted: inDouble})
			lit.Reset()
		}
	}

	for wp.pos < len(wp.src) {
		r := wp.peek()

		switch {
		case inDouble && r == '"':
			wp.advance()
			flush()

			return parts, nil
		case !inDouble && r == '\'':
			wp.advance()
			flush()

			var sb strings.Builder
			for wp.pos < len(wp.src) && wp.peek() != '\'' {
				sb.WriteRune(wp.advance())
			}

			if wp.pos < len(wp.src) {
				wp.advance()
			}

			parts = append(parts, &Literal{Text: sb.String(), Quoted: true})
		case !inDouble && r == '"':
			wp.advance()
			flush()

			inner, err := wp.parseParts(true)
			if err != nil {
				return nil, err
			}

			parts = append(parts, &DoubleQuoted{Parts: inner})
		case r == '\\' && !inDouble:
			wp.advance()

			if wp.pos < len(wp.src) {
				lit.WriteRune(wp.advance())
			}
		case r == '\\' && inDouble:
			wp.advance()

			if wp.pos < len(wp.src) {
				next := wp.peek()
				if next == '"' || next == '\\' || next == '$' || next == '`' {
					lit.WriteRune(wp.advance())
				} else {
					lit.WriteRune('\\')
				}
			}
		case r == '`':
			flush()

			sub, err := wp.parseBacktickSub()
			if err != nil {
				return nil, err
			}

			parts = append(parts, sub)
		case r == '$':
			flush()

			part, err := wp.parseDollar()
			if err != nil {
				return nil, err
			}

			parts = append(parts, part)
		case !inDouble && (r == '*' || r == '?' || r == '['):
			flush()

			var sb strings.Builder
			for wp.pos < len(wp.src) && strings.ContainsRune("*?[]", wp.peek()) {
				sb.WriteRune(wp.advance())
			}

			parts = append(parts, &Glob{Pattern: sb.String()})
		default:
			lit.WriteRune(wp.advance())
		}
	}

	flush()

	return parts, nil
}

func (wp *wordParser) parseBacktickSub() (WordPart, error) {
	wp.advance() // opening `

	var sb strings.Builder
	for wp.pos < len(wp.src) && wp.peek() != '`' {
		sb.WriteRune(wp.advance())
	}

	if wp.pos < len(wp.src) {
		wp.advance()
	}

	prog, err := Parse(sb.String())
	if err != nil {
		return nil, err
	}

	return &CommandSub{Body: prog}, nil
}

func (wp *wordParser) parseDollar() (WordPart, error) {
	wp.advance() // '$'

	switch wp.peek() {
	case '(':
		wp.advance()

		if wp.peek() == '(' {
			wp.advance()

			expr, err := wp.readBalanced('(', ')')
			if err != nil {
				return nil, err
			}

			if wp.peek() == ')' {
				wp.advance()
			}

			return &ArithmeticSub{Expr: expr}, nil
		}

		body, err := wp.readBalanced('(', ')')
		if err != nil {
			return nil, err
		}

		prog, err := Parse(body)
		if err != nil {
			return nil, err
		}

		return &CommandSub{Body: prog}, nil
	case '{':
		wp.advance()

		body, err := wp.readBalanced('{', '}')
		if err != nil {
			return nil, err
		}

		return parseBraceExpansion(body)
	case '?', '#', '@', '*', '$', '!', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		name := string(wp.advance())

		return &SpecialVar{Name: name}, nil
	default:
		var sb strings.Builder
		for wp.pos < len(wp.src) && isAlnum(wp.peek()) {
			sb.WriteRune(wp.advance())
		}

		if sb.Len() == 0 {
			return &Literal{Text: "$"}, nil
		}

		return &Variable{Name: sb.String()}, nil
	}
}

// readBalanced consumes text through the matching close delimiter, honoring
// nested open/close pairs, and returns the text before that delimiter.
func (wp *wordParser) readBalanced(open, closeCh rune) (string, error) {
	depth := 1

	var sb strings.Builder

	for wp.pos < len(wp.src) {
		r := wp.peek()

		switch r {
		case open:
			depth++
		case closeCh:
			depth--

			if depth == 0 {
				wp.advance()

				return sb.String(), nil
			}
		}

		sb.WriteRune(wp.advance())
	}

	return sb.String(), nil
}

// parseBraceExpansion parses the body of a ${...} expression into the
// appropriate WordPart: length, default, assign-default, or a plain
// variable reference.
func parseBraceExpansion(body string) (WordPart, error) {
	if strings.HasPrefix(body, "#") && len(body) > 1 {
		return &VarLength{Name: body[1:]}, nil
	}

	for _, sep := range []string{":-", ":="} {
		if idx := strings.Index(body, sep); idx >= 0 {
			name := body[:idx]
			word, err := parseWordText(body[idx+2:])
			if err != nil {
				return nil, err
			}

			if sep == ":-" {
				return &VarDefault{Name: name, Colon: true, Word: word}, nil
			}

			return &VarAssignDefault{Name: name, Colon: true, Word: word}, nil
		}
	}

	for _, sep := range []string{"-", "="} {
		if idx := strings.Index(body, sep); idx >= 0 {
			name := body[:idx]
			word, err := parseWordText(body[idx+1:])
			if err != nil {
				return nil, err
			}

			if sep == "-" {
				return &VarDefault{Name: name, Word: word}, nil
			}

			return &VarAssignDefault{Name: name, Word: word}, nil
		}
	}

	return &Variable{Name: body}, nil
}
