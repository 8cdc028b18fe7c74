package shell

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// expandWord turns a parsed Word into its resulting command-line fields.
// Unquoted variable, command, and arithmetic substitutions are split on
// whitespace; quoted text and glob results are not split further. This
// implements the practical subset of POSIX word expansion the toolbox
// scripts in practice rely on, not full field-splitting/IFS semantics.
func (ip *interp) expandWord(w *Word) ([]string, error) {
	if len(w.Parts) == 1 {
		return ip.expandSinglePart(w.Parts[0])
	}

	var sb strings.Builder

	for _, part := range w.Parts {
		val, _, err := ip.expandPartValue(part)
		if err != nil {
			return nil, err
		}

		sb.WriteString(val)
	}

	result := sb.String()

	for _, part := range w.Parts {
		if g, ok := part.(*Glob); ok {
			_ = g

			return ip.expandGlob(result), nil
		}
	}

	return []string{result}, nil
}

func (ip *interp) expandSinglePart(part WordPart) ([]string, error) {
	if g, ok := part.(*Glob); ok {
		return ip.expandGlob(g.Pattern), nil
	}

	val, splittable, err := ip.expandPartValue(part)
	if err != nil {
		return nil, err
	}

	if !splittable {
		return []string{val}, nil
	}

	fields := strings.Fields(val)
	if len(fields) == 0 {
		return nil, nil
	}

	return fields, nil
}

// expandPartValue returns the literal value of one WordPart plus whether
// an unquoted expansion of that kind is eligible for field splitting.
func (ip *interp) expandPartValue(part WordPart) (string, bool, error) {
	switch p := part.(type) {
	case *Literal:
		return p.Text, false, nil
	case *DoubleQuoted:
		var sb strings.Builder

		for _, inner := range p.Parts {
			val, _, err := ip.expandPartValue(inner)
			if err != nil {
				return "", false, err
			}

			sb.WriteString(val)
		}

		return sb.String(), false, nil
	case *Variable:
		return ip.lookupVar(p.Name), true, nil
	case *SpecialVar:
		return ip.lookupSpecial(p.Name), true, nil
	case *VarLength:
		return strconv.Itoa(len(ip.lookupVar(p.Name))), false, nil
	case *VarDefault:
		val := ip.lookupVar(p.Name)
		if val == "" && (p.Colon || !ip.varIsSet(p.Name)) {
			fields, err := ip.expandWord(p.Word)
			if err != nil {
				return "", false, err
			}

			return strings.Join(fields, " "), true, nil
		}

		return val, true, nil
	case *VarAssignDefault:
		val := ip.lookupVar(p.Name)
		if val == "" && (p.Colon || !ip.varIsSet(p.Name)) {
			fields, err := ip.expandWord(p.Word)
			if err != nil {
				return "", false, err
			}

			val = strings.Join(fields, " ")
			ip.env.Set(p.Name, val)
		}

		return val, true, nil
	case *CommandSub:
		out, err := ip.captureOutput(p.Body)
		if err != nil {
			return "", false, err
		}

		return strings.TrimRight(out, "\n"), true, nil
	case *ArithmeticSub:
		val, err := ip.evalArithmetic(p.Expr)
		if err != nil {
			return "", false, err
		}

		return strconv.FormatInt(val, 10), false, nil
	case *Glob:
		return p.Pattern, false, nil
	default:
		return "", false, fmt.Errorf("shell: unhandled word part %T", part)
	}
}

func (ip *interp) varIsSet(name string) bool {
	_, ok := ip.env.Get(name)

	return ok
}

func (ip *interp) lookupVar(name string) string {
	if n, err := strconv.Atoi(name); err == nil {
		pos := ip.env.Positional()
		if n >= 1 && n <= len(pos) {
			return pos[n-1]
		}

		return ""
	}

	val, _ := ip.env.Get(name)

	return val
}

func (ip *interp) lookupSpecial(name string) string {
	switch name {
	case "?":
		return strconv.Itoa(ip.env.LastStatus)
	case "#":
		return strconv.Itoa(len(ip.env.Positional()))
	case "@", "*":
		return strings.Join(ip.env.Positional(), " ")
	case "0":
		return "sh"
	case "$":
		return strconv.Itoa(pid)
	case "!":
		return ""
	default:
		return ip.lookupVar(name)
	}
}

// expandGlob matches pattern against entries of its directory, falling
// back to the literal pattern when nothing matches, per POSIX globbing.
func (ip *interp) expandGlob(pattern string) []string {
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) == 0 {
		return []string{pattern}
	}

	return matches
}

// captureOutput runs a command-substitution body and returns what it wrote
// to stdout. Because applets.Func already threads stdout as an io.Writer
// parameter instead of a hardcoded real file descriptor, capture is a
// direct *bytes.Buffer swap rather than the fd-renumber dance a
// real-process shell needs.
func (ip *interp) captureOutput(body *Program) (string, error) {
	var buf bytes.Buffer

	sub := &interp{
		env:    cloneEnvForSubshell(ip.env),
		stdin:  ip.stdin,
		stdout: &buf,
		stderr: ip.stderr,
		dispatch: ip.dispatch,
	}

	if _, err := sub.runProgram(body); err != nil {
		var rs returnSignal
		if !errors.As(err, &rs) {
			return buf.String(), err
		}
	}

	return buf.String(), nil
}

func cloneEnvForSubshell(env *ShellEnv) *ShellEnv {
	clone := &ShellEnv{
		vars:      map[string]string{},
		exports:   map[string]bool{},
		functions: env.functions,
	}

	for k, v := range env.vars {
		clone.vars[k] = v
	}

	for k, v := range env.exports {
		clone.exports[k] = v
	}

	clone.positional = append([]string(nil), env.positional...)
	clone.LastStatus = env.LastStatus

	return clone
}
