package model

import "strings"

// Term is the payment condition selected for the whole cart.
type Term string

const (
	TermImmediate Term = "immediate"
	Term30        Term = "term30"
	Term90        Term = "term90"
)

// DefaultTerm is used when nothing was persisted or the stored token is unknown.
const DefaultTerm = TermImmediate

// Terms lists every payment term in display order.
var Terms = []Term{TermImmediate, Term30, Term90}

var termAliases = map[string]Term{
	"immediate": TermImmediate,
	"avista":    TermImmediate,
	"a_vista":   TermImmediate,
	"a-vista":   TermImmediate,
	"term30":    Term30,
	"30":        Term30,
	"30d":       Term30,
	"30dias":    Term30,
	"term90":    Term90,
	"90":        Term90,
	"90d":       Term90,
	"90dias":    Term90,
}

// ParseTerm converts a stored or user supplied token into a Term.
func ParseTerm(s string) (Term, bool) {
	t, ok := termAliases[strings.ToLower(strings.TrimSpace(s))]
	return t, ok
}

func (t Term) Valid() bool {
	switch t {
	case TermImmediate, Term30, Term90:
		return true
	}
	return false
}

// Label returns the buyer facing description of the term.
func (t Term) Label() string {
	switch t {
	case TermImmediate:
		return "À vista"
	case Term30:
		return "30 dias"
	case Term90:
		return "90 dias"
	default:
		return string(t)
	}
}
