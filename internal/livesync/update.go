package livesync

import (
	"strings"

	"github.com/appetiteclub/kds/internal/kitchen"
	"github.com/appetiteclub/kds/internal/tables"
	"github.com/appetiteclub/kds/pkg/event"
)

const (
	KindEntries = "entries"
	KindTable   = "table"
)

// Update is one message delivered to a display.
type Update struct {
	Kind    string               `json:"kind"`
	Entries *kitchen.EntryChange `json:"entries,omitempty"`
	Table   *tables.GroupChange  `json:"table,omitempty"`
}

// Key identifies the entity an update is about. Updates sharing a key
// within the debounce window collapse into the last one.
func (u Update) Key() string {
	switch {
	case u.Table != nil:
		return "table:" + u.Table.TableID.String()
	case u.Entries != nil && u.Entries.Type == event.EventTableBumped:
		return "bump:" + u.Entries.TableID.String()
	case u.Entries != nil && len(u.Entries.Entries) == 1:
		return "entry:" + u.Entries.Entries[0].ID.String()
	case u.Entries != nil:
		return "entries:" + u.Entries.TableID.String() + ":" + u.Entries.StationID.String() + ":" + u.Entries.Type
	default:
		return u.Kind
	}
}

// Restrict returns the part of u the filter may see.
func (f Filter) Restrict(u Update) (Update, bool) {
	switch {
	case u.Table != nil:
		return u, f.AllowsTable(u.Table.TableID)
	case u.Entries != nil:
		change := *u.Entries
		kept := make([]kitchen.RoutingEntry, 0, len(change.Entries))
		for i := range change.Entries {
			if f.AllowsEntry(&change.Entries[i]) {
				kept = append(kept, change.Entries[i])
			}
		}
		if len(kept) == 0 {
			return Update{}, false
		}
		change.Entries = kept
		return Update{Kind: KindEntries, Entries: &change}, true
	default:
		return Update{}, false
	}
}

// DecodeUpdate turns a bus message into an Update by its subject.
func DecodeUpdate(codec event.Codec, subject string, data []byte) (Update, error) {
	if strings.HasPrefix(subject, event.TablesTopicPrefix+".") {
		var change tables.GroupChange
		if err := codec.Unmarshal(data, &change); err != nil {
			return Update{}, err
		}
		return Update{Kind: KindTable, Table: &change}, nil
	}
	var change kitchen.EntryChange
	if err := codec.Unmarshal(data, &change); err != nil {
		return Update{}, err
	}
	return Update{Kind: KindEntries, Entries: &change}, nil
}
