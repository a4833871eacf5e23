package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ariefcatur/go-realtime-shop/internal/orders"
	"github.com/ariefcatur/go-realtime-shop/internal/redisx"
	"github.com/go-chi/chi/v5"
)

// ShopHandler serves the cashier, barista, admin and customer surfaces of
// every shop.
type ShopHandler struct {
	Svc   *orders.Service
	Cache *redisx.Cache // optional
	Now   func() time.Time
}

func (h *ShopHandler) Register(r chi.Router) {
	admin, user := requireRole(RoleAdmin), requireRole(RoleUser)

	r.With(admin).Post("/shops", h.createShop)
	r.Route("/shops/{shopID}", func(r chi.Router) {
		r.Get("/", h.getShop)
		r.With(admin).Patch("/", h.updateShop)
		r.With(admin).Post("/pause", h.pauseShop)
		r.With(admin).Post("/resume", h.resumeShop)

		r.Get("/products", h.listProducts)
		r.With(admin).Post("/products", h.addProduct)
		r.With(admin).Put("/products/{productID}", h.updateProduct)

		r.With(user).Get("/snapshot", h.snapshot)

		r.With(user).Get("/orders", h.listQueue)
		r.With(user).Post("/orders", h.submitOrder)
		r.Get("/orders/{orderID}", h.orderStatus)
		r.With(user).Delete("/orders/{orderID}", h.deleteOrder)
		r.With(user).Post("/orders/{orderID}/complete", h.completeOrder)
		r.With(user).Post("/orders/{orderID}/receive", h.receiveOrder)
		r.With(user).Post("/orders/{orderID}/receive/{productID}", h.receiveLine)
		r.With(user).Delete("/orders/{orderID}/receive", h.unreceiveOrder)

		r.With(user).Post("/stocks/{stockID}/claim", h.claimStock)
		r.With(user).Post("/stocks/{stockID}/complete", h.completeStock)
		r.With(user).Post("/stocks/{stockID}/revert", h.revertStock)
	})
}

func (h *ShopHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func decode(r *http.Request, v any) bool {
	return json.NewDecoder(r.Body).Decode(v) == nil
}

func (h *ShopHandler) createShop(w http.ResponseWriter, r *http.Request) {
	var req orders.Shop
	if !decode(r, &req) {
		badRequest(w, "invalid json")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	shop, err := h.Svc.CreateShop(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, shop)
}

func (h *ShopHandler) getShop(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	shop, err := h.Svc.GetShop(ctx, chi.URLParam(r, "shopID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shop)
}

func (h *ShopHandler) updateShop(w http.ResponseWriter, r *http.Request) {
	var req orders.ShopUpdate
	if !decode(r, &req) {
		badRequest(w, "invalid json")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	shop, err := h.Svc.UpdateShop(ctx, chi.URLParam(r, "shopID"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shop)
}

type pauseReq struct {
	Message string `json:"message"`
}

func (h *ShopHandler) pauseShop(w http.ResponseWriter, r *http.Request) {
	var req pauseReq
	if !decode(r, &req) {
		badRequest(w, "invalid json")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	shop, err := h.Svc.PauseShop(ctx, chi.URLParam(r, "shopID"), req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shop)
}

func (h *ShopHandler) resumeShop(w http.ResponseWriter, r *http.Request) {
	// resume rewrites every open order of the day
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	shopID := chi.URLParam(r, "shopID")
	res, err := h.Svc.ResumeShop(ctx, shopID)
	if err != nil {
		writeError(w, err)
		return
	}
	for _, id := range res.OrderIDs {
		h.forget(ctx, shopID, id)
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *ShopHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Svc.ListProducts(ctx, chi.URLParam(r, "shopID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *ShopHandler) addProduct(w http.ResponseWriter, r *http.Request) {
	var p orders.Product
	if !decode(r, &p) {
		badRequest(w, "invalid json")
		return
	}
	p.ShopID = chi.URLParam(r, "shopID")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	out, err := h.Svc.AddProduct(ctx, p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *ShopHandler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var p orders.Product
	if !decode(r, &p) {
		badRequest(w, "invalid json")
		return
	}
	p.ShopID = chi.URLParam(r, "shopID")
	p.ID = chi.URLParam(r, "productID")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	out, err := h.Svc.UpdateProduct(ctx, p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *ShopHandler) snapshot(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	snap, err := h.Svc.Snapshot(ctx, chi.URLParam(r, "shopID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
