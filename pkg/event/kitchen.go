package event

import (
	"strings"
	"time"
)

const (
	OrdersPlacedTopic = "orders.placed"
	EventOrderPlaced  = "order.placed"

	RoutingTopicPrefix = "kitchen.routing"
	TablesTopicPrefix  = "kitchen.tables"

	EventEntryRouted        = "kitchen.entry.routed"
	EventEntryStatusChanged = "kitchen.entry.status_changed"
	EventTableBumped        = "kitchen.table.bumped"
	EventTableUpdated       = "kitchen.table.updated"
	EventTableRemoved       = "kitchen.table.removed"
)

// RoutingSubject is the subject an entry change is published on.
func RoutingSubject(stationID, tableID string) string {
	return RoutingTopicPrefix + "." + token(stationID) + "." + token(tableID)
}

// RoutingStationPattern matches every entry change of one station.
func RoutingStationPattern(stationID string) string {
	return RoutingTopicPrefix + "." + token(stationID) + ".*"
}

// RoutingTablePattern matches every entry change of one table.
func RoutingTablePattern(tableID string) string {
	return RoutingTopicPrefix + ".*." + token(tableID)
}

// RoutingTableWideSubject carries changes spanning every station of a
// table, so they reach each feed as one message.
func RoutingTableWideSubject(tableID string) string {
	return RoutingSubject("", tableID)
}

// RoutingTableWidePattern matches the table-wide changes of every table.
func RoutingTableWidePattern() string {
	return RoutingTopicPrefix + "." + token("") + ".*"
}

// TableSubject is the subject a table group change is published on.
func TableSubject(tableID string) string {
	return TablesTopicPrefix + "." + token(tableID)
}

func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(s)
}

// OrderPlacedEvent is the inbound order payload produced by the
// ordering collaborator (server terminals, voice intake).
type OrderPlacedEvent struct {
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	OrderID    string          `json:"order_id"`
	TableID    string          `json:"table_id"`
	TableLabel string          `json:"table_label,omitempty"`
	SeatID     string          `json:"seat_id,omitempty"`
	SeatLabel  string          `json:"seat_label,omitempty"`
	Rush       bool            `json:"rush,omitempty"`
	Transcript string          `json:"transcript,omitempty"`
	Items      []OrderItemLine `json:"items"`
}

type OrderItemLine struct {
	Name      string   `json:"name"`
	Category  string   `json:"category"`
	Modifiers []string `json:"modifiers,omitempty"`
	Quantity  int      `json:"quantity,omitempty"`
}
