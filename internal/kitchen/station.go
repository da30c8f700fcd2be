package kitchen

import (
	"strings"
	"time"

	"github.com/appetiteclub/kds/pkg/enums/station"
	"github.com/google/uuid"
)

type StationID = uuid.UUID
type OrderID = uuid.UUID
type EntryID = uuid.UUID
type TableID = uuid.UUID
type SeatID = uuid.UUID

// Station is a preparation area orders are routed to. Stations are
// deactivated, never deleted, while routing history references them.
type Station struct {
	ID        StationID `bson:"_id" json:"id"`
	Name      string    `bson:"name" json:"name"`
	Category  string    `bson:"category" json:"category"`
	Color     string    `bson:"color,omitempty" json:"color,omitempty"`
	Active    bool      `bson:"active" json:"active"`
	Position  int       `bson:"position" json:"position"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// NewStation builds an active station. A blank name falls back to the
// label of a well-known category.
func NewStation(name, category, color string, position int) *Station {
	now := time.Now().UTC()
	name = strings.TrimSpace(name)
	if name == "" {
		if c := station.ByName(category); c != nil {
			name = c.Label()
		}
	}
	return &Station{
		ID:        uuid.New(),
		Name:      name,
		Category:  station.Normalize(category),
		Color:     strings.TrimSpace(color),
		Active:    true,
		Position:  position,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate returns the list of problems with the station, empty when
// it can be stored.
func (s *Station) Validate() []string {
	var errs []string
	if s.ID == uuid.Nil {
		errs = append(errs, "id is required")
	}
	if strings.TrimSpace(s.Name) == "" {
		errs = append(errs, "name is required")
	}
	if station.Normalize(s.Category) == "" {
		errs = append(errs, "category is required")
	}
	if s.Position < 0 {
		errs = append(errs, "position must not be negative")
	}
	return errs
}

// StationPatch holds the administrative edits allowed on a station.
type StationPatch struct {
	Name     *string `json:"name,omitempty"`
	Category *string `json:"category,omitempty"`
	Color    *string `json:"color,omitempty"`
	Active   *bool   `json:"active,omitempty"`
	Position *int    `json:"position,omitempty"`
}

func (p StationPatch) apply(s *Station, now time.Time) {
	if p.Name != nil {
		s.Name = strings.TrimSpace(*p.Name)
	}
	if p.Category != nil {
		s.Category = station.Normalize(*p.Category)
	}
	if p.Color != nil {
		s.Color = strings.TrimSpace(*p.Color)
	}
	if p.Active != nil {
		s.Active = *p.Active
	}
	if p.Position != nil {
		s.Position = *p.Position
	}
	s.UpdatedAt = now
}
