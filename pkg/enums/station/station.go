package station

import "strings"

// Category is the kind of preparation area a station serves. Item
// categories are matched against station categories when routing.
type Category struct {
	Name string
}

func (c Category) Code() string {
	return c.Name
}

func (c Category) Label() string {
	// Capitalize first letter
	if len(c.Name) == 0 {
		return ""
	}
	return strings.ToUpper(c.Name[:1]) + c.Name[1:]
}

type Enum struct {
	Grill  Category
	Fry    Category
	Salad  Category
	Pastry Category
	Bar    Category
	Coffee Category
	Expo   Category
}

var Categories = Enum{
	Grill:  Category{Name: "grill"},
	Fry:    Category{Name: "fry"},
	Salad:  Category{Name: "salad"},
	Pastry: Category{Name: "pastry"},
	Bar:    Category{Name: "bar"},
	Coffee: Category{Name: "coffee"},
	Expo:   Category{Name: "expo"},
}

var All = []Category{
	Categories.Grill,
	Categories.Fry,
	Categories.Salad,
	Categories.Pastry,
	Categories.Bar,
	Categories.Coffee,
	Categories.Expo,
}

// ByName returns the category for a given name, or nil if not found
func ByName(name string) *Category {
	name = Normalize(name)
	for _, c := range All {
		if c.Name == name {
			return &c
		}
	}
	return nil
}

// Normalize lower-cases and trims a category name for lookups.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
