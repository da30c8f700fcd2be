package livesync

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/appetiteclub/kds/internal/kitchen"
	"github.com/appetiteclub/kds/pkg/event"
	"github.com/google/uuid"
)

type Role string

const (
	RoleExpo    Role = "expo"
	RoleAdmin   Role = "admin"
	RoleStation Role = "station"
	RoleServer  Role = "server"
)

// Filter is what a display asks to watch. Role decides what it may see;
// StationID and TableID narrow it further.
type Filter struct {
	Role      Role        `json:"role"`
	StationID *uuid.UUID  `json:"station_id,omitempty"`
	TableID   *uuid.UUID  `json:"table_id,omitempty"`
	Tables    []uuid.UUID `json:"tables,omitempty"`
}

// ParseFilter reads role, station, table and tables (comma separated)
// query parameters.
func ParseFilter(q url.Values) (Filter, error) {
	f := Filter{Role: Role(strings.ToLower(strings.TrimSpace(q.Get("role"))))}
	if raw := q.Get("station"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return f, kitchen.Errorf("parse filter", raw, kitchen.ErrValidation, "invalid station ID")
		}
		f.StationID = &id
	}
	if raw := q.Get("table"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return f, kitchen.Errorf("parse filter", raw, kitchen.ErrValidation, "invalid table ID")
		}
		f.TableID = &id
	}
	if raw := q.Get("tables"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := uuid.Parse(part)
			if err != nil {
				return f, kitchen.Errorf("parse filter", part, kitchen.ErrValidation, "invalid table ID")
			}
			f.Tables = append(f.Tables, id)
		}
	}
	return f, f.Validate()
}

// Validate rejects filters a role cannot use.
func (f Filter) Validate() error {
	switch f.Role {
	case RoleExpo, RoleAdmin:
		return nil
	case RoleStation:
		if f.StationID == nil || *f.StationID == uuid.Nil {
			return kitchen.Errorf("validate filter", string(f.Role), kitchen.ErrValidation, "station role requires a station")
		}
		return nil
	case RoleServer:
		if len(f.tables()) == 0 {
			return kitchen.Errorf("validate filter", string(f.Role), kitchen.ErrValidation, "server role requires tables")
		}
		return nil
	default:
		return kitchen.Errorf("validate filter", string(f.Role), kitchen.ErrValidation, "unknown role %q", f.Role)
	}
}

// tables merges TableID into Tables, sorted and deduplicated.
func (f Filter) tables() []uuid.UUID {
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	add := func(id uuid.UUID) {
		if id != uuid.Nil && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	if f.TableID != nil {
		add(*f.TableID)
	}
	for _, id := range f.Tables {
		add(id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Signature is the canonical key of the feed the filter describes. Two
// filters with the same signature share one transport subscription.
func (f Filter) Signature() string {
	var b strings.Builder
	b.WriteString("role=")
	b.WriteString(string(f.Role))
	if f.StationID != nil {
		b.WriteString(";station=")
		b.WriteString(strings.ToLower(f.StationID.String()))
	}
	if ts := f.tables(); len(ts) > 0 {
		parts := make([]string, len(ts))
		for i, id := range ts {
			parts[i] = id.String()
		}
		b.WriteString(";tables=")
		b.WriteString(strings.Join(parts, ","))
	}
	return b.String()
}

// Topics returns the bus subjects the feed needs.
func (f Filter) Topics() []string {
	tables := f.tables()
	switch f.Role {
	case RoleStation:
		return stationTopics(*f.StationID, tables)
	case RoleServer:
		// Ready entries of any table reach servers.
		topics := []string{event.RoutingTopicPrefix + ".>"}
		for _, id := range tables {
			topics = append(topics, event.TableSubject(id.String()))
		}
		return topics
	default:
		if f.StationID != nil {
			return stationTopics(*f.StationID, tables)
		}
		if len(tables) == 0 {
			return []string{event.RoutingTopicPrefix + ".>", event.TablesTopicPrefix + ".>"}
		}
		var topics []string
		for _, id := range tables {
			topics = append(topics, event.RoutingTablePattern(id.String()), event.TableSubject(id.String()))
		}
		return topics
	}
}

// stationTopics covers the station's own subjects and the table-wide
// ones, which Restrict narrows to the station's entries.
func stationTopics(stationID uuid.UUID, tables []uuid.UUID) []string {
	if len(tables) == 0 {
		return []string{event.RoutingStationPattern(stationID.String()), event.RoutingTableWidePattern()}
	}
	topics := make([]string, 0, 2*len(tables))
	for _, id := range tables {
		topics = append(topics, event.RoutingSubject(stationID.String(), id.String()), event.RoutingTableWideSubject(id.String()))
	}
	return topics
}

// AllowsEntry applies the role rules to one entry.
func (f Filter) AllowsEntry(e *kitchen.RoutingEntry) bool {
	switch f.Role {
	case RoleStation:
		return e.StationID == *f.StationID && f.inTables(e.TableID)
	case RoleServer:
		return f.inTables(e.TableID) || e.CompletedAt != nil
	default:
		if f.StationID != nil && e.StationID != *f.StationID {
			return false
		}
		return f.inTables(e.TableID)
	}
}

// AllowsTable applies the role rules to a table group.
func (f Filter) AllowsTable(tableID kitchen.TableID) bool {
	switch f.Role {
	case RoleStation:
		return false
	case RoleServer:
		return f.inTables(tableID)
	default:
		if f.StationID != nil {
			return false
		}
		return f.inTables(tableID)
	}
}

// inTables is true when the filter names no tables or names tableID.
func (f Filter) inTables(tableID kitchen.TableID) bool {
	tables := f.tables()
	if len(tables) == 0 {
		return true
	}
	for _, id := range tables {
		if id == tableID {
			return true
		}
	}
	return false
}

func (f Filter) String() string {
	return fmt.Sprintf("Filter(%s)", f.Signature())
}
