package entrystate

import (
	"strings"
)

type State struct {
	Name string
}

func (s State) Code() string {
	return s.Name
}

func (s State) Label() string {
	parts := strings.Split(s.Name, "-")
	for i := range parts {
		if len(parts[i]) > 0 {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, " ")
}

func (s State) String() string {
	return s.Name
}

type Enum struct {
	Queued     State
	InProgress State
	Done       State
}

var States = Enum{
	Queued:     State{Name: "queued"},
	InProgress: State{Name: "in-progress"},
	Done:       State{Name: "done"},
}

var All = []State{
	States.Queued,
	States.InProgress,
	States.Done,
}

// ByName returns the state for a given name, or nil if not found
func ByName(name string) *State {
	for _, s := range All {
		if s.Name == name {
			return &s
		}
	}
	return nil
}
