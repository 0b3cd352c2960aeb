package humastar

import (
	"fmt"
	"strings"
)

// Action is a state-dependent hypermedia action link, written as
//
//	<url>; rel="close"; method="DELETE"; title="Close document"
type Action struct {
	Rel    string
	Href   string
	Method string
	Title  string
}

// Actor is implemented by response bodies that offer state-dependent actions.
type Actor interface {
	Actions() []Action
}

// LinkHeader formats the action as an RFC 8288 Link header value with method
// and title extension parameters.
func (a Action) LinkHeader() string {
	var b strings.Builder
	fmt.Fprintf(&b, `<%s>; rel="%s"`, a.Href, a.Rel)
	if a.Method != "" {
		fmt.Fprintf(&b, `; method="%s"`, a.Method)
	}
	if a.Title != "" {
		fmt.Fprintf(&b, `; title="%s"`, a.Title)
	}
	return b.String()
}

// ActionDef is a reusable action template. Pattern holds one %s verb per
// argument passed to ActionsFor.
type ActionDef struct {
	Rel     string
	Pattern string
	Method  string
	Title   string
}

// ActionsFor expands defs with args.
func ActionsFor(defs []ActionDef, args ...any) []Action {
	actions := make([]Action, len(defs))
	for i, d := range defs {
		actions[i] = Action{
			Rel:    d.Rel,
			Href:   fmt.Sprintf(d.Pattern, args...),
			Method: d.Method,
			Title:  d.Title,
		}
	}
	return actions
}
