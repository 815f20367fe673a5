package matching

import "github.com/desertthunder/curator/internal/shared"

// DefaultMinScore is the auto-association threshold when none is configured.
const DefaultMinScore = 85.0

// Decision is what a caller may do with a chain result.
type Decision int

const (
	DecisionNone    Decision = iota // nothing matched
	DecisionSuggest                 // store for human confirmation
	DecisionBind                    // bind automatically
)

func (d Decision) String() string {
	switch d {
	case DecisionSuggest:
		return "suggest"
	case DecisionBind:
		return "bind"
	default:
		return "none"
	}
}

// Policy gates automatic binding on a minimum score.
type Policy struct {
	AutoAssociate bool
	MinScore      float64
}

// PolicyFromFlags reads the threshold and the auto-association switch from the configuration store.
func PolicyFromFlags(flags shared.Flags) Policy {
	p := Policy{AutoAssociate: flags.Bool(shared.FlagAutoAssociate), MinScore: flags.Float(shared.FlagMinScore)}
	if p.MinScore <= 0 {
		p.MinScore = DefaultMinScore
	}
	return p
}

// Decide binds when auto-association is on and the score reaches the threshold; anything else found is a suggestion.
func (p Policy) Decide(m Match) Decision {
	switch {
	case !m.Found():
		return DecisionNone
	case p.AutoAssociate && m.Score >= p.MinScore:
		return DecisionBind
	default:
		return DecisionSuggest
	}
}
