package tablestatus

import "strings"

type Status struct {
	Name string
}

func (s Status) Code() string {
	return s.Name
}

func (s Status) Label() string {
	if len(s.Name) == 0 {
		return ""
	}
	return strings.ToUpper(s.Name[:1]) + s.Name[1:]
}

func (s Status) String() string {
	return s.Name
}

type Enum struct {
	New       Status
	Preparing Status
	Mixed     Status
	Ready     Status
}

var Statuses = Enum{
	New:       Status{Name: "new"},
	Preparing: Status{Name: "preparing"},
	Mixed:     Status{Name: "mixed"},
	Ready:     Status{Name: "ready"},
}

var All = []Status{
	Statuses.New,
	Statuses.Preparing,
	Statuses.Mixed,
	Statuses.Ready,
}

// ByName returns the status for a given name, or nil if not found
func ByName(name string) *Status {
	for _, s := range All {
		if s.Name == name {
			return &s
		}
	}
	return nil
}
