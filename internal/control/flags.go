package control

import "strings"

// Flag identifies one lifecycle flag of a node.
type Flag uint32

const (
	FlagShouldStart Flag = 1 << iota
	FlagHasStarted
	FlagShouldTerminate
	FlagHasTerminated
	FlagIsAborting
)

// Order in which transition hooks observe flags raised by the same update.
var flagOrder = []Flag{
	FlagIsAborting,
	FlagShouldTerminate,
	FlagShouldStart,
	FlagHasStarted,
	FlagHasTerminated,
}

func (f Flag) String() string {
	switch f {
	case FlagShouldStart:
		return "shouldStart"
	case FlagHasStarted:
		return "hasStarted"
	case FlagShouldTerminate:
		return "shouldTerminate"
	case FlagHasTerminated:
		return "hasTerminated"
	case FlagIsAborting:
		return "isAborting"
	}
	return "unknown"
}

// TransitionFunc is called after a flag of the node identified by nodeID
// became true.
type TransitionFunc func(nodeID string, flag Flag)

type flagSet uint32

func (s flagSet) has(f Flag) bool       { return uint32(s)&uint32(f) != 0 }
func (s flagSet) with(f Flag) flagSet    { return s | flagSet(f) }
func (s flagSet) without(f Flag) flagSet { return s &^ flagSet(f) }

func (s flagSet) String() string {
	var parts []string
	for _, f := range []Flag{FlagShouldStart, FlagHasStarted, FlagShouldTerminate, FlagHasTerminated, FlagIsAborting} {
		if s.has(f) {
			parts = append(parts, f.String())
		}
	}
	if len(parts) == 0 {
		return "idle"
	}
	return strings.Join(parts, "|")
}
