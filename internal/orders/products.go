package orders

import (
	"context"
	"strings"
)

func (s *Service) AddProduct(ctx context.Context, p Product) (Product, error) {
	err := s.mutate(ctx, "orders.AddProduct", "product", p.ID, p.ShopID, func(ctx context.Context, tx Tx, cs *changeSet) error {
		if err := validateProduct(p); err != nil {
			return err
		}
		if _, err := tx.GetShop(ctx, p.ShopID); err != nil {
			return err
		}
		now := s.now()
		p.CreatedAt = now
		p.UpdatedAt = now
		if err := tx.InsertProduct(ctx, p); err != nil {
			return err
		}
		cs.product(ChangeAdded, p)
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	return p, nil
}

// UpdateProduct replaces the editable fields of an existing product. The id
// never changes.
func (s *Service) UpdateProduct(ctx context.Context, p Product) (Product, error) {
	var out Product
	err := s.mutate(ctx, "orders.UpdateProduct", "product", p.ID, p.ShopID, func(ctx context.Context, tx Tx, cs *changeSet) error {
		if err := validateProduct(p); err != nil {
			return err
		}
		cur, err := tx.GetProduct(ctx, p.ShopID, p.ID)
		if err != nil {
			return err
		}
		p.CreatedAt = cur.CreatedAt
		p.UpdatedAt = s.now()
		if err := tx.UpdateProduct(ctx, p); err != nil {
			return err
		}
		cs.product(ChangeModified, p)
		out = p
		return nil
	})
	return out, err
}

func validateProduct(p Product) error {
	switch {
	case strings.TrimSpace(p.ShopID) == "":
		return validationf("shop id is required")
	case strings.TrimSpace(p.ID) == "":
		return validationf("product id is required")
	case strings.TrimSpace(p.Name) == "":
		return validationf("product name is required")
	case p.Price < 0:
		return validationf("price of %s must not be negative", p.ID)
	case p.SpanSeconds <= 0:
		return validationf("span of %s must be positive", p.ID)
	case p.Stock < 0:
		return validationf("stock of %s must not be negative", p.ID)
	}
	return nil
}
