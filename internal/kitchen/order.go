package kitchen

import (
	"strings"
	"time"

	"github.com/appetiteclub/kds/pkg/enums/station"
	"github.com/google/uuid"
)

type LineItem struct {
	Name      string   `bson:"name" json:"name"`
	Category  string   `bson:"category" json:"category"`
	Modifiers []string `bson:"modifiers,omitempty" json:"modifiers,omitempty"`
	Quantity  int      `bson:"quantity" json:"quantity"`
}

// Order is owned by the table (and optionally the seat) that placed it.
// It is immutable once routed; Status is derived from its entries.
type Order struct {
	ID         OrderID    `bson:"_id" json:"id"`
	TableID    TableID    `bson:"table_id" json:"table_id"`
	TableLabel string     `bson:"table_label,omitempty" json:"table_label,omitempty"`
	SeatID     *SeatID    `bson:"seat_id,omitempty" json:"seat_id,omitempty"`
	SeatLabel  string     `bson:"seat_label,omitempty" json:"seat_label,omitempty"`
	Items      []LineItem `bson:"items" json:"items"`
	Transcript string     `bson:"transcript,omitempty" json:"transcript,omitempty"`
	Rush       bool       `bson:"rush" json:"rush"`
	CreatedAt  time.Time  `bson:"created_at" json:"created_at"`

	Status string `bson:"-" json:"status,omitempty"`
}

// Validate rejects orders that cannot be routed. It normalizes item
// categories and quantities in place.
func (o *Order) Validate() error {
	ref := o.ID.String()
	if o.TableID == uuid.Nil {
		return Errorf("validate order", ref, ErrValidation, "table is required")
	}
	if len(o.Items) == 0 {
		return Errorf("validate order", ref, ErrValidation, "order has no items")
	}
	for i := range o.Items {
		item := &o.Items[i]
		item.Name = strings.TrimSpace(item.Name)
		if item.Name == "" {
			return Errorf("validate order", ref, ErrValidation, "item %d has no name", i)
		}
		item.Category = station.Normalize(item.Category)
		if item.Quantity <= 0 {
			item.Quantity = 1
		}
	}
	if o.SeatID != nil && *o.SeatID == uuid.Nil {
		o.SeatID = nil
	}
	return nil
}
