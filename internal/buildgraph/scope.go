package buildgraph

import "fmt"

// LinkScope is how a library's archive and generated headers reach its
// consumer. The scope is fixed on the edge when the graph is built; there is
// no global link policy to flip afterwards.
type LinkScope uint8

const (
	// ScopePrivate links the library's archive into the consumer and stops
	// propagation there.
	ScopePrivate LinkScope = iota
	// ScopePublic links the archive and re-exports the library's
	// dependencies (archives and generated include dirs) to the consumer.
	ScopePublic
	// ScopeInterface contributes the library's generated include dir only;
	// no archive enters the link line.
	ScopeInterface
)

// ParseScope maps a manifest scope string onto the enum.
func ParseScope(s string) (LinkScope, bool) {
	switch s {
	case "private":
		return ScopePrivate, true
	case "public":
		return ScopePublic, true
	case "interface":
		return ScopeInterface, true
	default:
		return ScopePrivate, false
	}
}

func (s LinkScope) String() string {
	switch s {
	case ScopePrivate:
		return "private"
	case ScopePublic:
		return "public"
	case ScopeInterface:
		return "interface"
	default:
		return fmt.Sprintf("LinkScope(%d)", uint8(s))
	}
}
