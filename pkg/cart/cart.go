// Package cart holds the customer's in-progress selection, one cart per
// session, one restaurant per cart. Every mutation is persisted through the
// Store so a reload does not lose the cart.
package cart

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/tableserve/pkg/errs"
	"github.com/example/tableserve/pkg/models"
	"github.com/example/tableserve/pkg/pricing"
)

// Store persists carts between requests. Load returns (nil, nil) when no cart
// exists for the session.
type Store interface {
	Save(ctx context.Context, cart *Cart) error
	Load(ctx context.Context, sessionID string) (*Cart, error)
	Delete(ctx context.Context, sessionID string) error
}

type Cart struct {
	SessionID    string            `json:"session_id"`
	RestaurantID string            `json:"restaurant_id,omitempty"`
	Lines        []models.CartLine `json:"lines"`
}

type Aggregator struct {
	store  Store
	rules  pricing.Rules
	logger *zap.Logger
}

func NewAggregator(store Store, rules pricing.Rules, logger *zap.Logger) *Aggregator {
	return &Aggregator{store: store, rules: rules, logger: logger}
}

type AddRequest struct {
	SessionID   string
	Item        *models.MenuItem
	Quantity    int
	VariantName string
	AddonNames  []string
}

// Add appends the selection to the session's cart, merging with an existing
// line when item, variant and addon set all match. Items from a different
// restaurant are rejected; the caller clears the cart first to switch.
func (a *Aggregator) Add(ctx context.Context, req AddRequest) (*Cart, error) {
	if req.Item == nil {
		return nil, errs.New(errs.KindNotFound, "menu item not found")
	}
	if req.Quantity < 1 {
		return nil, errs.Field("quantity", "must be at least 1")
	}
	if !req.Item.Available {
		return nil, errs.Newf(errs.KindValidation, "item %q is not available", req.Item.Name)
	}

	var variant *models.Variant
	if req.VariantName != "" {
		variant = req.Item.VariantByName(req.VariantName)
		if variant == nil {
			return nil, errs.Field("variant", "unknown variant "+req.VariantName)
		}
	}

	addons, err := resolveAddons(req.Item, req.AddonNames)
	if err != nil {
		return nil, err
	}

	c, err := a.load(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if c.RestaurantID != "" && c.RestaurantID != req.Item.RestaurantID {
		return nil, errs.New(errs.KindConflict, "cart holds items from another restaurant")
	}
	c.RestaurantID = req.Item.RestaurantID

	key := mergeKey(req.Item.ID, variant, addons)
	merged := false
	for i := range c.Lines {
		if mergeKey(c.Lines[i].ItemID, c.Lines[i].Variant, c.Lines[i].Addons) == key {
			c.Lines[i].Quantity += req.Quantity
			merged = true
			break
		}
	}
	if !merged {
		c.Lines = append(c.Lines, models.CartLine{
			ID:           uuid.NewString(),
			ItemID:       req.Item.ID,
			ItemName:     req.Item.Name,
			RestaurantID: req.Item.RestaurantID,
			Variant:      variant,
			Addons:       addons,
			Quantity:     req.Quantity,
			UnitPrice:    pricing.UnitPrice(req.Item, variant, addons),
		})
	}

	if err := a.store.Save(ctx, c); err != nil {
		return nil, err
	}
	a.logger.Debug("cart line added",
		zap.String("session_id", req.SessionID),
		zap.String("item_id", req.Item.ID),
		zap.Bool("merged", merged))
	return c, nil
}

// UpdateQuantity sets the line's quantity. Zero removes the line; negative
// quantities are rejected.
func (a *Aggregator) UpdateQuantity(ctx context.Context, sessionID, lineID string, quantity int) (*Cart, error) {
	if quantity < 0 {
		return nil, errs.Field("quantity", "must not be negative")
	}
	if quantity == 0 {
		return a.Remove(ctx, sessionID, lineID)
	}

	c, err := a.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for i := range c.Lines {
		if c.Lines[i].ID == lineID {
			c.Lines[i].Quantity = quantity
			if err := a.store.Save(ctx, c); err != nil {
				return nil, err
			}
			return c, nil
		}
	}
	return nil, errs.New(errs.KindNotFound, "cart line not found")
}

func (a *Aggregator) Remove(ctx context.Context, sessionID, lineID string) (*Cart, error) {
	c, err := a.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for i := range c.Lines {
		if c.Lines[i].ID == lineID {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			if len(c.Lines) == 0 {
				c.RestaurantID = ""
			}
			if err := a.store.Save(ctx, c); err != nil {
				return nil, err
			}
			return c, nil
		}
	}
	return nil, errs.New(errs.KindNotFound, "cart line not found")
}

func (a *Aggregator) Get(ctx context.Context, sessionID string) (*Cart, error) {
	return a.load(ctx, sessionID)
}

func (a *Aggregator) Clear(ctx context.Context, sessionID string) error {
	return a.store.Delete(ctx, sessionID)
}

func (a *Aggregator) Totals(c *Cart) pricing.Totals {
	return pricing.CartTotals(c.Lines, a.rules, 0)
}

func (a *Aggregator) load(ctx context.Context, sessionID string) (*Cart, error) {
	if sessionID == "" {
		return nil, errs.Field("session_id", "is required")
	}
	c, err := a.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		c = &Cart{SessionID: sessionID}
	}
	return c, nil
}

func resolveAddons(item *models.MenuItem, names []string) ([]models.Addon, error) {
	if len(names) == 0 {
		return nil, nil
	}
	seen := make(map[string]bool, len(names))
	var addons []models.Addon
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		addon := item.AddonByName(name)
		if addon == nil {
			return nil, errs.Field("addons", "unknown addon "+name)
		}
		addons = append(addons, *addon)
	}
	return addons, nil
}

// mergeKey identifies a line by item, variant and the set of addon names.
// Addon order does not matter.
func mergeKey(itemID string, variant *models.Variant, addons []models.Addon) string {
	parts := []string{itemID}
	if variant != nil {
		parts = append(parts, "v:"+variant.Name)
	}
	names := make([]string, 0, len(addons))
	for _, addon := range addons {
		names = append(names, addon.Name)
	}
	sort.Strings(names)
	return strings.Join(append(parts, names...), "|")
}
