package seeding

import (
	"github.com/appetiteclub/kds/internal/kitchen"
	"github.com/google/uuid"
)

// DemoTable is a demo party with the orders its seats placed.
type DemoTable struct {
	Label  string
	Orders []DemoOrder
}

type DemoOrder struct {
	Seat  string
	Rush  bool
	Items []kitchen.LineItem
}

// DemoTables returns the demo service: a couple on drinks and desserts,
// a four-top at dinner and a solo diner on a rushed lunch.
func DemoTables() []DemoTable {
	return []DemoTable{
		{
			Label: "T1",
			Orders: []DemoOrder{
				{Seat: "1", Items: []kitchen.LineItem{
					{Name: "Aperol Spritz", Category: "bar", Quantity: 1},
					{Name: "Chocolate Lava Cake", Category: "pastry", Quantity: 1, Modifiers: []string{"extra vanilla ice cream"}},
				}},
				{Seat: "2", Items: []kitchen.LineItem{
					{Name: "Espresso Martini", Category: "bar", Quantity: 1},
					{Name: "Tiramisu", Category: "pastry", Quantity: 1},
				}},
			},
		},
		{
			Label: "T2",
			Orders: []DemoOrder{
				{Seat: "1", Items: []kitchen.LineItem{
					{Name: "Bistro Steak", Category: "grill", Quantity: 1, Modifiers: []string{"medium rare", "no sauce"}},
					{Name: "West Coast IPA", Category: "bar", Quantity: 1},
				}},
				{Seat: "2", Items: []kitchen.LineItem{
					{Name: "Seared Salmon", Category: "grill", Quantity: 1},
					{Name: "Sparkling Water", Category: "bar", Quantity: 1},
				}},
				{Seat: "3", Items: []kitchen.LineItem{
					{Name: "Harvest Bowl", Category: "salad", Quantity: 1, Modifiers: []string{"gluten free"}},
				}},
				{Seat: "10", Items: []kitchen.LineItem{
					{Name: "Cappuccino", Category: "coffee", Quantity: 1},
				}},
				{Items: []kitchen.LineItem{
					{Name: "Truffle Fries", Category: "fry", Quantity: 2},
				}},
			},
		},
		{
			Label: "T3",
			Orders: []DemoOrder{
				{Seat: "1", Rush: true, Items: []kitchen.LineItem{
					{Name: "Smash Burger", Category: "grill", Quantity: 1},
					{Name: "House Iced Tea", Category: "bar", Quantity: 1, Modifiers: []string{"no ice"}},
				}},
			},
		},
	}
}

// Orders expands the demo tables into kitchen orders with fresh IDs.
func Orders(tables []DemoTable) []*kitchen.Order {
	var out []*kitchen.Order
	for _, t := range tables {
		tableID := uuid.New()
		seats := map[string]uuid.UUID{}
		for _, o := range t.Orders {
			order := &kitchen.Order{
				ID:         uuid.New(),
				TableID:    tableID,
				TableLabel: t.Label,
				Rush:       o.Rush,
				Items:      o.Items,
			}
			if o.Seat != "" {
				id, ok := seats[o.Seat]
				if !ok {
					id = uuid.New()
					seats[o.Seat] = id
				}
				order.SeatID = &id
				order.SeatLabel = o.Seat
			}
			out = append(out, order)
		}
	}
	return out
}
