package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-realtime-shop/internal/orders"
	"github.com/go-chi/chi/v5"
)

type submitReq struct {
	ProductAmount map[string]int `json:"product_amount"`
}

type queueItem struct {
	orders.Order
	WaitSeconds int `json:"wait_seconds"`
}

type claimReq struct {
	BaristaID int `json:"barista_id"`
}

func (h *ShopHandler) listQueue(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	q, err := h.Svc.ListQueue(ctx, chi.URLParam(r, "shopID"))
	if err != nil {
		writeError(w, err)
		return
	}
	now := h.now()
	out := make([]queueItem, 0, len(q))
	for _, o := range q {
		out = append(out, queueItem{Order: o, WaitSeconds: orders.WaitSeconds(o, now)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *ShopHandler) submitOrder(w http.ResponseWriter, r *http.Request) {
	var req submitReq
	if !decode(r, &req) {
		badRequest(w, "invalid json")
		return
	}
	if len(req.ProductAmount) == 0 {
		badRequest(w, "product_amount is required")
		return
	}
	shopID := chi.URLParam(r, "shopID")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Fast-path idempotency via Redis; a replay answers with the first order
	idem := r.Header.Get("Idempotency-Key")
	if idem != "" {
		if o, ok := h.Cache.Submitted(ctx, shopID, idem); ok {
			w.Header().Set("Idempotent-Replayed", "true")
			writeJSON(w, http.StatusOK, o)
			return
		}
	}

	o, err := h.Svc.SubmitOrder(ctx, shopID, req.ProductAmount)
	if err != nil {
		writeError(w, err)
		return
	}
	if idem != "" {
		h.Cache.RememberSubmit(ctx, idem, o)
	}
	h.Cache.SetOrder(ctx, o)
	writeJSON(w, http.StatusCreated, o)
}

// orderStatus is the customer status page: cache first, store on miss.
func (h *ShopHandler) orderStatus(w http.ResponseWriter, r *http.Request) {
	shopID, orderID := chi.URLParam(r, "shopID"), chi.URLParam(r, "orderID")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if o, ok := h.Cache.Order(ctx, shopID, orderID); ok {
		writeJSON(w, http.StatusOK, orders.NewStatusView(o, h.now()))
		return
	}
	v, err := h.Svc.GetOrder(ctx, shopID, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.Cache.SetOrder(ctx, v.Order)
	writeJSON(w, http.StatusOK, orders.NewStatusView(v.Order, h.now()))
}

func (h *ShopHandler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	shopID, orderID := chi.URLParam(r, "shopID"), chi.URLParam(r, "orderID")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Svc.DeleteOrder(ctx, shopID, orderID); err != nil {
		writeError(w, err)
		return
	}
	h.forget(ctx, shopID, orderID)
	w.WriteHeader(http.StatusNoContent)
}

type orderOp func(ctx context.Context, shopID, orderID string) (orders.Order, error)

func (h *ShopHandler) orderAction(op orderOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shopID, orderID := chi.URLParam(r, "shopID"), chi.URLParam(r, "orderID")

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		o, err := op(ctx, shopID, orderID)
		if err != nil {
			writeError(w, err)
			return
		}
		h.forget(ctx, shopID, orderID)
		writeJSON(w, http.StatusOK, o)
	}
}

func (h *ShopHandler) completeOrder(w http.ResponseWriter, r *http.Request) {
	h.orderAction(h.Svc.CompleteOrder)(w, r)
}

func (h *ShopHandler) receiveOrder(w http.ResponseWriter, r *http.Request) {
	h.orderAction(h.Svc.ReceiveOrder)(w, r)
}

func (h *ShopHandler) unreceiveOrder(w http.ResponseWriter, r *http.Request) {
	h.orderAction(h.Svc.UnreceiveOrder)(w, r)
}

func (h *ShopHandler) receiveLine(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	h.orderAction(func(ctx context.Context, shopID, orderID string) (orders.Order, error) {
		return h.Svc.ReceiveOrderLine(ctx, shopID, orderID, productID)
	})(w, r)
}

type stockOp func(ctx context.Context, shopID, stockID string) (orders.Stock, error)

func (h *ShopHandler) stockAction(op stockOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shopID, stockID := chi.URLParam(r, "shopID"), chi.URLParam(r, "stockID")

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		st, err := op(ctx, shopID, stockID)
		if err != nil {
			writeError(w, err)
			return
		}
		h.forget(ctx, shopID, st.OrderID)
		writeJSON(w, http.StatusOK, st)
	}
}

func (h *ShopHandler) claimStock(w http.ResponseWriter, r *http.Request) {
	var req claimReq
	if !decode(r, &req) {
		badRequest(w, "invalid json")
		return
	}
	h.stockAction(func(ctx context.Context, shopID, stockID string) (orders.Stock, error) {
		return h.Svc.ClaimStock(ctx, shopID, stockID, req.BaristaID)
	})(w, r)
}

func (h *ShopHandler) completeStock(w http.ResponseWriter, r *http.Request) {
	h.stockAction(h.Svc.CompleteStock)(w, r)
}

func (h *ShopHandler) revertStock(w http.ResponseWriter, r *http.Request) {
	h.stockAction(h.Svc.RevertStock)(w, r)
}

// forget drops the cached status page of an order this request changed.
// The relay does the same for changes made elsewhere.
func (h *ShopHandler) forget(ctx context.Context, shopID, orderID string) {
	_ = h.Cache.InvalidateOrder(ctx, shopID, orderID)
}
