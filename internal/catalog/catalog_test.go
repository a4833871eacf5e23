package catalog_test

import (
	"context"
	"strings"
	"testing"

	"github.com/ariefcatur/go-realtime-shop/internal/catalog"
	"github.com/ariefcatur/go-realtime-shop/internal/memstore"
	"github.com/ariefcatur/go-realtime-shop/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
shop:
  id: kopi-1
  name: Kopi Satu
  public_message: open till late
  baristas:
    7: active
    8: inactive
products:
  - id: latte
    name: Cafe Latte
    short_name: LT
    price: 30000
    span_seconds: 120
  - id: tea
    name: Iced Tea
    price: 15000
    span_seconds: 45
`

func TestParse(t *testing.T) {
	c, err := catalog.Parse(strings.NewReader(sample))
	require.NoError(t, err)

	assert.Equal(t, "kopi-1", c.Shop.ID)
	assert.Equal(t, orders.BaristaActive, c.Shop.Baristas[7])
	require.Len(t, c.Products, 2)
	assert.Equal(t, "kopi-1", c.Products[0].ShopID)
	assert.Equal(t, 120, c.Products[0].SpanSeconds)
}

func TestParseRejects(t *testing.T) {
	tests := map[string]string{
		"missing shop id": "shop:\n  name: x\n",
		"duplicate":       "shop:\n  id: s\nproducts:\n  - id: a\n  - id: a\n",
		"unknown field":   "shop:\n  id: s\n  colour: red\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := catalog.Parse(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestApplyIsRepeatable(t *testing.T) {
	ctx := context.Background()
	svc := orders.NewService(memstore.New(), nil)
	c, err := catalog.Parse(strings.NewReader(sample))
	require.NoError(t, err)

	require.NoError(t, c.Apply(ctx, svc))

	c.Products[1].Price = 17000
	c.Shop.Name = "Kopi Satu Baru"
	require.NoError(t, c.Apply(ctx, svc))

	shop, err := svc.GetShop(ctx, "kopi-1")
	require.NoError(t, err)
	assert.Equal(t, "Kopi Satu Baru", shop.Name)
	assert.Equal(t, orders.ShopActive, shop.Status)

	ps, err := svc.ListProducts(ctx, "kopi-1")
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, 17000, ps[1].Price)
}
