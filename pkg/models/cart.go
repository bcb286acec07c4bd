package models

// CartLine is one in-progress selection: an item, an optional variant, a
// deduplicated set of addons and a quantity. Prices are snapshotted from the
// catalog when the line is created.
type CartLine struct {
	ID           string   `json:"id"`
	ItemID       string   `json:"item_id"`
	ItemName     string   `json:"item_name"`
	RestaurantID string   `json:"restaurant_id"`
	Variant      *Variant `json:"variant,omitempty"`
	Addons       []Addon  `json:"addons,omitempty"`
	Quantity     int      `json:"quantity"`
	UnitPrice    float64  `json:"unit_price"`
}
