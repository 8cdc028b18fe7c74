package shell

import "fmt"

// parser builds a Program from a token stream produced by the lexer.
type parser struct {
	toks []token
	pos  int
}

// Parse lexes and parses a full script.
func Parse(src string) (*Program, error) {
	toks := newLexer(src).tokenize()
	p := &parser{toks: toks}

	prog, err := p.parseProgram()
	if err != nil {
		return nil, err
	}

	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("shell: unexpected token near %q", p.peek().raw)
	}

	return prog, nil
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) peekAt(offset int) token {
	idx := p.pos + offset
	if idx >= len(p.toks) {
		return token{kind: tokEOF}
	}

	return p.toks[idx]
}

func (p *parser) advance() token {
	t := p.peek()
	if p.pos < len(p.toks)-1 {
		p.pos++
	}

	return t
}

func (p *parser) skipSeparators() {
	for p.peek().kind == tokNewline || p.peek().kind == tokSemi {
		p.advance()
	}
}

func (p *parser) expect(kind tokenKind) (token, error) {
	if p.peek().kind != kind {
		return token{}, fmt.Errorf("shell: expected token %d, found %q", kind, p.peek().raw)
	}

	return p.advance(), nil
}

// parseProgram parses complete commands until EOF or a token that cannot
// start one (a closing keyword/paren), used both at top level and inside
// compound command bodies.
func (p *parser) parseProgram() (*Program, error) {
	prog := &Program{}

	p.skipSeparators()

	for p.peek().isCommandStart() {
		cc, err := p.parseCompleteCommand()
		if err != nil {
			return nil, err
		}

		prog.Commands = append(prog.Commands, cc)
		p.skipSeparators()
	}

	return prog, nil
}

func (p *parser) parseCompleteCommand() (*CompleteCommand, error) {
	list, err := p.parseAndOrList()
	if err != nil {
		return nil, err
	}

	cc := &CompleteCommand{List: list}

	if p.peek().kind == tokAmp {
		p.advance()

		cc.Background = true
	}

	return cc, nil
}

func (p *parser) parseAndOrList() (*AndOrList, error) {
	first, err := p.parsePipeline()
	if err != nil {
		return nil, err
	}

	list := &AndOrList{First: first}

	for p.peek().kind == tokAnd || p.peek().kind == tokOr {
		op := "&&"
		if p.peek().kind == tokOr {
			op = "||"
		}

		p.advance()
		p.skipNewlines()

		next, err := p.parsePipeline()
		if err != nil {
			return nil, err
		}

		list.Rest = append(list.Rest, AndOrOp{Op: op, Pipeline: next})
	}

	return list, nil
}

func (p *parser) skipNewlines() {
	for p.peek().kind == tokNewline {
		p.advance()
	}
}

func (p *parser) parsePipeline() (*Pipeline, error) {
	pl := &Pipeline{}

	if p.peek().kind == tokBang {
		p.advance()

		pl.Negate = true
	}

	cmd, err := p.parseCommand()
	if err != nil {
		return nil, err
	}

	pl.Commands = append(pl.Commands, cmd)

	for p.peek().kind == tokPipe {
		p.advance()
		p.skipNewlines()

		cmd, err := p.parseCommand()
		if err != nil {
			return nil, err
		}

		pl.Commands = append(pl.Commands, cmd)
	}

	return pl, nil
}

func (p *parser) parseCommand() (Command, error) {
	switch p.peek().kind {
	case tokIf:
		return p.parseIf()
	case tokFor:
		return p.parseFor()
	case tokWhile:
		return p.parseWhile()
	case tokUntil:
		return p.parseUntil()
	case tokCase:
		return p.parseCase()
	case tokLParen:
		return p.parseSubshell()
	case tokLBrace:
		return p.parseBraceGroup()
	case tokWord:
		if p.peek().kind == tokWord && p.peekAt(1).kind == tokLParen && p.peekAt(2).kind == tokRParen {
			return p.parseFuncDef()
		}

		return p.parseSimpleCommand()
	default:
		return p.parseSimpleCommand()
	}
}

func (p *parser) parseFuncDef() (Command, error) {
	name := p.advance().raw
	p.advance() // (
	p.advance() // )
	p.skipNewlines()

	body, err := p.parseCommand()
	if err != nil {
		return nil, err
	}

	return &FuncDef{Name: name, Body: body}, nil
}

func (p *parser) parseIf() (Command, error) {
	p.advance() // if

	cond, err := p.parseProgram()
	if err != nil {
		return nil, err
	}

	if _, err := p.expect(tokThen); err != nil {
		return nil, err
	}

	thenBody, err := p.parseProgram()
	if err != nil {
		return nil, err
	}

	node := &If{Cond: cond, Then: thenBody}

	for p.peek().kind == tokElif {
		p.advance()

		elifCond, err := p.parseProgram()
		if err != nil {
			return nil, err
		}

		if _, err := p.expect(tokThen); err != nil {
			return nil, err
		}

		elifThen, err := p.parseProgram()
		if err != nil {
			return nil, err
		}

		node.Elif = append(node.Elif, ElifClause{Cond: elifCond, Then: elifThen})
	}

	if p.peek().kind == tokElse {
		p.advance()

		elseBody, err := p.parseProgram()
		if err != nil {
			return nil, err
		}

		node.Else = elseBody
	}

	if _, err := p.expect(tokFi); err != nil {
		return nil, err
	}

	return node, nil
}

func (p *parser) parseFor() (Command, error) {
	p.advance() // for

	nameTok, err := p.expect(tokWord)
	if err != nil {
		return nil, err
	}

	node := &For{Var: nameTok.raw}

	if p.peek().kind == tokIn {
		p.advance()

		for p.peek().kind == tokWord {
			w, err := parseWordText(p.advance().raw)
			if err != nil {
				return nil, err
			}

			node.Words = append(node.Words, w)
		}
	}

	p.skipSeparators()

	if _, err := p.expect(tokDo); err != nil {
		return nil, err
	}

	body, err := p.parseProgram()
	if err != nil {
		return nil, err
	}

	node.Body = body

	if _, err := p.expect(tokDone); err != nil {
		return nil, err
	}

	return node, nil
}

func (p *parser) parseWhile() (Command, error) {
	p.advance()

	cond, err := p.parseProgram()
	if err != nil {
		return nil, err
	}

	if _, err := p.expect(tokDo); err != nil {
		return nil, err
	}

	body, err := p.parseProgram()
	if err != nil {
		return nil, err
	}

	if _, err := p.expect(tokDone); err != nil {
		return nil, err
	}

	return &While{Cond: cond, Body: body}, nil
}

func (p *parser) parseUntil() (Command, error) {
	p.advance()

	cond, err := p.parseProgram()
	if err != nil {
		return nil, err
	}

	if _, err := p.expect(tokDo); err != nil {
		return nil, err
	}

	body, err := p.parseProgram()
	if err != nil {
		return nil, err
	}

	if _, err := p.expect(tokDone); err != nil {
		return nil, err
	}

	return &Until{Cond: cond, Body: body}, nil
}

func (p *parser) parseCase() (Command, error) {
	p.advance() // case

	wordTok, err := p.expect(tokWord)
	if err != nil {
		return nil, err
	}

	w, err := parseWordText(wordTok.raw)
	if err != nil {
		return nil, err
	}

	node := &Case{Word: w}

	p.skipSeparators()

	if _, err := p.expect(tokIn); err != nil {
		return nil, err
	}

	p.skipSeparators()

	for p.peek().kind == tokWord || p.peek().kind == tokLParen {
		if p.peek().kind == tokLParen {
			p.advance()
		}

		var item CaseItem

		for {
			patTok, err := p.expect(tokWord)
			if err != nil {
				return nil, err
			}

			pat, err := parseWordText(patTok.raw)
			if err != nil {
				return nil, err
			}

			item.Patterns = append(item.Patterns, pat)

			if p.peek().kind == tokPipe {
				p.advance()

				continue
			}

			break
		}

		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}

		p.skipSeparators()

		body, err := p.parseCaseItemBody()
		if err != nil {
			return nil, err
		}

		item.Body = body

		node.Items = append(node.Items, item)

		// ";;" is lexed as two consecutive Semi tokens.
		for p.peek().kind == tokSemi {
			p.advance()
		}

		p.skipSeparators()
	}

	if _, err := p.expect(tokEsac); err != nil {
		return nil, err
	}

	return node, nil
}

// parseCaseItemBody parses the commands inside one "pattern) ... ;;" item,
// stopping at the terminating ";;" (two consecutive Semi tokens) without
// consuming it, rather than reusing parseProgram's generic separator
// skipping, which would otherwise swallow the ";;" and spill into the next
// pattern alternative.
func (p *parser) parseCaseItemBody() (*Program, error) {
	prog := &Program{}

	for {
		for p.peek().kind == tokNewline || (p.peek().kind == tokSemi && p.peekAt(1).kind != tokSemi) {
			p.advance()
		}

		if p.peek().kind == tokEsac || p.peek().kind == tokEOF {
			break
		}

		if p.peek().kind == tokSemi && p.peekAt(1).kind == tokSemi {
			break
		}

		if !p.peek().isCommandStart() {
			break
		}

		cc, err := p.parseCompleteCommand()
		if err != nil {
			return nil, err
		}

		prog.Commands = append(prog.Commands, cc)
	}

	return prog, nil
}

func (p *parser) parseSubshell() (Command, error) {
	p.advance() // (

	body, err := p.parseProgram()
	if err != nil {
		return nil, err
	}

	if _, err := p.expect(tokRParen); err != nil {
		return nil, err
	}

	return &Subshell{Body: body}, nil
}

func (p *parser) parseBraceGroup() (Command, error) {
	p.advance() // {

	body, err := p.parseProgram()
	if err != nil {
		return nil, err
	}

	if _, err := p.expect(tokRBrace); err != nil {
		return nil, err
	}

	return &BraceGroup{Body: body}, nil
}

func (p *parser) parseSimpleCommand() (Command, error) {
	cmd := &SimpleCommand{}

	for {
		switch {
		case p.peek().kind == tokWord && isAssignmentWord(p.peek().raw) && len(cmd.Words) == 0:
			name, val := splitAssignment(p.advance().raw)

			w, err := parseWordText(val)
			if err != nil {
				return nil, err
			}

			cmd.Assignments = append(cmd.Assignments, Assignment{Name: name, Value: w})
		case p.peek().kind == tokWord:
			w, err := parseWordText(p.advance().raw)
			if err != nil {
				return nil, err
			}

			cmd.Words = append(cmd.Words, w)
		case isRedirectKind(p.peek().kind):
			r, err := p.parseRedirect()
			if err != nil {
				return nil, err
			}

			cmd.Redirects = append(cmd.Redirects, r)
		default:
			if len(cmd.Words) == 0 && len(cmd.Assignments) == 0 && len(cmd.Redirects) == 0 {
				return nil, fmt.Errorf("shell: expected command, found %q", p.peek().raw)
			}

			return cmd, nil
		}
	}
}

func isRedirectKind(k tokenKind) bool {
	switch k {
	case tokLess, tokGreat, tokDGreat, tokTLess, tokDupGreat:
		return true
	default:
		return false
	}
}

func (p *parser) parseRedirect() (*Redirect, error) {
	tok := p.advance()

	r := &Redirect{FD: tok.fd}
	if r.FD == 0 {
		r.FD = -1
	}

	switch tok.kind {
	case tokLess:
		r.Kind = RedirectInput
	case tokGreat:
		r.Kind = RedirectOutput
	case tokDGreat:
		r.Kind = RedirectAppend
	case tokTLess:
		r.Kind = RedirectHereString
	case tokDupGreat:
		r.Kind = RedirectDupOutput
	}

	targetTok, err := p.expect(tokWord)
	if err != nil {
		return nil, fmt.Errorf("shell: redirection missing target: %w", err)
	}

	w, err := parseWordText(targetTok.raw)
	if err != nil {
		return nil, err
	}

	r.Target = w

	return r, nil
}

// isAssignmentWord reports whether a lexed word looks like NAME=value with
// no expansions before the '='.
func isAssignmentWord(raw string) bool {
	eq := -1

	for i, r := range raw {
		if r == '=' {
			eq = i

			break
		}

		if !isAlnum(r) {
			return false
		}
	}

	if eq <= 0 {
		return false
	}

	name := raw[:eq]
	if name[0] >= '0' && name[0] <= '9' {
		return false
	}

	return true
}

func splitAssignment(raw string) (name, value string) {
	for i, r := range raw {
		if r == '=' {
			return raw[:i], raw[i+1:]
		}
	}

	return raw, ""
}
