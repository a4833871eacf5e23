// Package catalog loads a shop and its product list from a YAML file.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/ariefcatur/go-realtime-shop/internal/orders"
	"gopkg.in/yaml.v3"
)

type Catalog struct {
	Shop     orders.Shop      `yaml:"shop"`
	Products []orders.Product `yaml:"products"`
}

// Parse decodes a catalog and stamps the shop id on every product.
func Parse(r io.Reader) (Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return Catalog{}, fmt.Errorf("parsing catalog YAML: %w", err)
	}
	if c.Shop.ID == "" {
		return Catalog{}, errors.New("catalog: shop.id is required")
	}
	seen := make(map[string]bool, len(c.Products))
	for i := range c.Products {
		p := &c.Products[i]
		if seen[p.ID] {
			return Catalog{}, fmt.Errorf("catalog: duplicate product %q", p.ID)
		}
		seen[p.ID] = true
		p.ShopID = c.Shop.ID
	}
	return c, nil
}

func Load(path string) (Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return Catalog{}, err
	}
	defer f.Close()
	return Parse(f)
}

// Admin is the slice of the order service a catalog is applied through.
type Admin interface {
	CreateShop(ctx context.Context, shop orders.Shop) (orders.Shop, error)
	UpdateShop(ctx context.Context, shopID string, u orders.ShopUpdate) (orders.Shop, error)
	AddProduct(ctx context.Context, p orders.Product) (orders.Product, error)
	UpdateProduct(ctx context.Context, p orders.Product) (orders.Product, error)
}

// Apply creates the shop and products, updating whatever already exists.
// Shop status of an existing shop is left alone.
func (c Catalog) Apply(ctx context.Context, admin Admin) error {
	if _, err := admin.CreateShop(ctx, c.Shop); err != nil {
		if !errors.Is(err, orders.ErrAlreadyExists) {
			return err
		}
		u := orders.ShopUpdate{Name: &c.Shop.Name, PublicMessage: &c.Shop.PublicMessage, Baristas: c.Shop.Baristas}
		if _, err := admin.UpdateShop(ctx, c.Shop.ID, u); err != nil {
			return err
		}
		log.Printf("catalog: shop %s updated", c.Shop.ID)
	}
	for _, p := range c.Products {
		_, err := admin.AddProduct(ctx, p)
		if errors.Is(err, orders.ErrAlreadyExists) {
			_, err = admin.UpdateProduct(ctx, p)
		}
		if err != nil {
			return fmt.Errorf("product %s: %w", p.ID, err)
		}
	}
	log.Printf("catalog: %d products applied to shop %s", len(c.Products), c.Shop.ID)
	return nil
}
