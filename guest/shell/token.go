package shell

// tokenKind enumerates the lexer's output token types.
type tokenKind int

const (
	tokWord tokenKind = iota
	tokPipe
	tokAnd
	tokOr
	tokSemi
	tokNewline
	tokAmp
	tokLParen
	tokRParen
	tokLess
	tokGreat
	tokDGreat
	tokTLess
	tokDupGreat // >&
	tokIf
	tokThen
	tokElif
	tokElse
	tokFi
	tokFor
	tokWhile
	tokUntil
	tokDo
	tokDone
	tokCase
	tokEsac
	tokIn
	tokLBrace
	tokRBrace
	tokBang
	tokEOF
)

// token is one lexical token. For tokWord, raw holds the literal source
// text of the word (still containing quotes/expansions, parsed later by
// parseWordText); fd holds a leading IO number for redirection tokens such as
// "2>".
type token struct {
	kind tokenKind
	raw  string
	fd   int
}

var keywords = map[string]tokenKind{
	"if":    tokIf,
	"then":  tokThen,
	"elif":  tokElif,
	"else":  tokElse,
	"fi":    tokFi,
	"for":   tokFor,
	"while": tokWhile,
	"until": tokUntil,
	"do":    tokDo,
	"done":  tokDone,
	"case":  tokCase,
	"esac":  tokEsac,
	"in":    tokIn,
	"{":     tokLBrace,
	"}":     tokRBrace,
	"!":     tokBang,
}

// isCommandStart reports whether a token can open a new command, used by
// the parser to detect the end of a word list without a separator.
func (t token) isCommandStart() bool {
	switch t.kind {
	case tokWord, tokIf, tokFor, tokWhile, tokUntil, tokCase, tokLParen, tokLBrace, tokBang:
		return true
	default:
		return false
	}
}
