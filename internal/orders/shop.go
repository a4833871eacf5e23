package orders

import (
	"context"
	"log"
	"maps"
	"strings"
)

// PauseShop stops order intake and remembers when the shop stopped
// serving. No order is touched.
func (s *Service) PauseShop(ctx context.Context, shopID, message string) (Shop, error) {
	var out Shop
	err := s.mutate(ctx, "orders.PauseShop", "shop", shopID, shopID, func(ctx context.Context, tx Tx, cs *changeSet) error {
		if strings.TrimSpace(message) == "" {
			return validationf("emergency message is required to pause")
		}
		shop, err := tx.GetShop(ctx, shopID)
		if err != nil {
			return err
		}
		if shop.Status != ShopActive {
			return transitionf("shop %s is %s", shopID, shop.Status)
		}
		now := s.now()
		shop.Status = ShopPauseOrdering
		shop.EmergencyMessage = message
		shop.LastActiveAt = now
		shop.UpdatedAt = now
		if err := tx.UpdateShop(ctx, shop); err != nil {
			return err
		}
		cs.shop(ChangeModified, shop)
		out = shop
		return nil
	})
	return out, err
}

type ResumeResult struct {
	Shop         Shop `json:"shop"`
	DelaySeconds int  `json:"delay_seconds"`
	Delayed      int  `json:"delayed_orders"`
	// OrderIDs lists the orders whose delay changed.
	OrderIDs []string `json:"order_ids,omitempty"`
}

// ResumeShop reopens a paused shop and pushes the pause duration onto the
// delay of every open order of the day. Orders and shop are written in one
// transaction: either every open order is delayed and the shop is active,
// or nothing changed and the shop is still paused.
func (s *Service) ResumeShop(ctx context.Context, shopID string) (ResumeResult, error) {
	var res ResumeResult
	err := s.mutate(ctx, "orders.ResumeShop", "shop", shopID, shopID, func(ctx context.Context, tx Tx, cs *changeSet) error {
		res = ResumeResult{}
		shop, err := tx.GetShop(ctx, shopID)
		if err != nil {
			return err
		}
		switch shop.Status {
		case ShopActive:
			res.Shop = shop
			return nil
		case ShopInactive:
			return transitionf("shop %s is inactive", shopID)
		}

		now := s.now()
		elapsed := max(int(now.Sub(shop.LastActiveAt).Seconds()), 0)
		if elapsed > 0 {
			open, err := tx.ListOpenOrders(ctx, shopID, s.today(now))
			if err != nil {
				return err
			}
			for _, o := range open {
				o.DelaySeconds += elapsed
				o.UpdatedAt = now
				if err := tx.UpdateOrder(ctx, o); err != nil {
					return err
				}
				cs.order(ChangeModified, o)
				res.OrderIDs = append(res.OrderIDs, o.ID)
			}
			res.Delayed = len(open)
		}

		shop.Status = ShopActive
		shop.EmergencyMessage = ""
		shop.LastActiveAt = now
		shop.UpdatedAt = now
		if err := tx.UpdateShop(ctx, shop); err != nil {
			return err
		}
		cs.shop(ChangeModified, shop)
		res.Shop = shop
		res.DelaySeconds = elapsed
		return nil
	})
	if err != nil {
		return ResumeResult{}, err
	}
	if res.Delayed > 0 {
		s.metrics.ordersDelayed(ctx, shopID, res.Delayed)
		log.Printf("shop %s resumed: %d open orders delayed by %ds", shopID, res.Delayed, res.DelaySeconds)
	}
	return res, nil
}

// CreateShop registers a new shop. New shops start active unless told
// otherwise.
func (s *Service) CreateShop(ctx context.Context, shop Shop) (Shop, error) {
	err := s.mutate(ctx, "orders.CreateShop", "shop", shop.ID, shop.ID, func(ctx context.Context, tx Tx, cs *changeSet) error {
		if strings.TrimSpace(shop.ID) == "" || strings.TrimSpace(shop.Name) == "" {
			return validationf("shop id and name are required")
		}
		if shop.Status == "" {
			shop.Status = ShopActive
		}
		if err := validateShop(shop); err != nil {
			return err
		}
		if shop.Baristas == nil {
			shop.Baristas = map[int]BaristaState{}
		}
		now := s.now()
		shop.UpdatedAt = now
		if shop.Status == ShopPauseOrdering {
			shop.LastActiveAt = now
		}
		if err := tx.InsertShop(ctx, shop); err != nil {
			return err
		}
		cs.shop(ChangeAdded, shop)
		return nil
	})
	if err != nil {
		return Shop{}, err
	}
	return shop, nil
}

type ShopUpdate struct {
	Name          *string              `json:"name,omitempty"`
	PublicMessage *string              `json:"public_message,omitempty"`
	Baristas      map[int]BaristaState `json:"baristas,omitempty"`
	Status        *ShopStatus          `json:"status,omitempty"`
}

// UpdateShop applies admin edits. Status may only toggle between active and
// inactive here; pausing and resuming have their own operations.
func (s *Service) UpdateShop(ctx context.Context, shopID string, u ShopUpdate) (Shop, error) {
	var out Shop
	err := s.mutate(ctx, "orders.UpdateShop", "shop", shopID, shopID, func(ctx context.Context, tx Tx, cs *changeSet) error {
		shop, err := tx.GetShop(ctx, shopID)
		if err != nil {
			return err
		}
		if u.Name != nil {
			if strings.TrimSpace(*u.Name) == "" {
				return validationf("shop name is required")
			}
			shop.Name = *u.Name
		}
		if u.PublicMessage != nil {
			shop.PublicMessage = *u.PublicMessage
		}
		if u.Baristas != nil {
			roster := maps.Clone(shop.Baristas)
			if roster == nil {
				roster = map[int]BaristaState{}
			}
			for id, st := range u.Baristas {
				if id == 0 || (st != BaristaActive && st != BaristaInactive) {
					return validationf("invalid roster entry %d=%q", id, st)
				}
				roster[id] = st
			}
			shop.Baristas = roster
		}
		if u.Status != nil && *u.Status != shop.Status {
			switch {
			case *u.Status == ShopPauseOrdering:
				return validationf("use pause to stop ordering")
			case shop.Status == ShopPauseOrdering:
				return transitionf("shop %s is paused; resume it first", shopID)
			case !u.Status.Valid():
				return validationf("unknown shop status %q", *u.Status)
			}
			shop.Status = *u.Status
			if shop.Status == ShopInactive {
				shop.LastActiveAt = s.now()
			}
		}
		shop.UpdatedAt = s.now()
		if err := tx.UpdateShop(ctx, shop); err != nil {
			return err
		}
		cs.shop(ChangeModified, shop)
		out = shop
		return nil
	})
	return out, err
}

func validateShop(shop Shop) error {
	if !shop.Status.Valid() {
		return validationf("unknown shop status %q", shop.Status)
	}
	if shop.Status == ShopPauseOrdering && strings.TrimSpace(shop.EmergencyMessage) == "" {
		return validationf("paused shop needs an emergency message")
	}
	for id, st := range shop.Baristas {
		if id == 0 || (st != BaristaActive && st != BaristaInactive) {
			return validationf("invalid roster entry %d=%q", id, st)
		}
	}
	return nil
}

// SetShopStatus toggles a shop between active and inactive.
func (s *Service) SetShopStatus(ctx context.Context, shopID string, status ShopStatus) (Shop, error) {
	return s.UpdateShop(ctx, shopID, ShopUpdate{Status: &status})
}
