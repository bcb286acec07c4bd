package models

// Variant is a mutually exclusive size/option choice. Its price replaces the
// item's base price, it does not add to it.
type Variant struct {
	Name  string  `bson:"name" json:"name"`
	Price float64 `bson:"price" json:"price"`
}

// Addon is an optional extra whose price is additive.
type Addon struct {
	Name  string  `bson:"name" json:"name"`
	Price float64 `bson:"price" json:"price"`
}

// MenuItem is the catalog read model. Orders snapshot prices at add-time, so a
// referenced item is never mutated retroactively by catalog edits.
type MenuItem struct {
	ID           string    `json:"id"`
	RestaurantID string    `json:"restaurant_id"`
	Name         string    `json:"name"`
	BasePrice    float64   `json:"base_price"`
	Variants     []Variant `json:"variants,omitempty"`
	Addons       []Addon   `json:"addons,omitempty"`
	Available    bool      `json:"available"`
}

// VariantByName returns the named variant, or nil when the item has none by
// that name.
func (m *MenuItem) VariantByName(name string) *Variant {
	for i := range m.Variants {
		if m.Variants[i].Name == name {
			return &m.Variants[i]
		}
	}
	return nil
}

// AddonByName returns the named addon, or nil.
func (m *MenuItem) AddonByName(name string) *Addon {
	for i := range m.Addons {
		if m.Addons[i].Name == name {
			return &m.Addons[i]
		}
	}
	return nil
}

// Restaurant is the slice of the restaurant profile the core needs for
// checkout and payouts.
type Restaurant struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
}
