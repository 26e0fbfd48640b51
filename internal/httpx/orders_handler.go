package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/go-guesthouse-orders/internal/orders"
	"github.com/ariefcatur/go-guesthouse-orders/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type OrdersHandler struct {
	// Store must be the notifying store so every mutation is published.
	Store        orders.Store
	Cache        *redisx.SnapshotCache // optional
	StrictStatus bool
	Now          func() time.Time
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(15 * time.Second))
		r.Get("/orders", h.listOrders)
		r.Post("/orders", h.createOrder)
		r.With(RequireCaller).Get("/orders/new", h.listNewOrders)
		r.Get("/orders/{id}", h.getOrder)
		r.With(RequireCaller).Patch("/orders/{id}/status", h.updateStatus)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps store errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	var ve *orders.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation failed", Fields: ve.Fields})
	case errors.Is(err, orders.ErrEmptyPatch):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, orders.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.Is(err, orders.ErrStatusRegression):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, errorBody{Error: "timeout"})
	default:
		log.Printf("orders handler: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func (h *OrdersHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	var (
		list []orders.Order
		err  error
	)
	if contact := r.URL.Query().Get("contact"); contact != "" {
		list, err = h.Store.FindByContact(ctx, contact)
	} else {
		list, err = h.Store.List(ctx)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (h *OrdersHandler) listNewOrders(w http.ResponseWriter, r *http.Request) {
	since := orders.Epoch
	if s := r.URL.Query().Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "since must be RFC3339"})
			return
		}
		since = t
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// taken before the query so nothing created during it falls behind the watermark
	checkedAt := h.now().UTC()
	list, err := h.Store.ListSince(ctx, since)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders.Batch{Orders: nonNil(list), CheckedAt: checkedAt})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	var (
		o   orders.Order
		err error
	)
	if h.Cache != nil {
		o, err = h.Cache.Load(ctx, id, h.Store.Get)
	} else {
		o, err = h.Store.Get(ctx, id)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var d orders.Draft
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return
	}
	if err := orders.ValidateDraft(d); err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Store.Create(ctx, d)
	if err != nil {
		writeError(w, err)
		return
	}
	log.Printf("order %d placed for room %s total=%d", o.ID, o.RoomNumber, o.Total)
	h.cacheSnapshot(ctx, o)
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var p orders.Patch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return
	}
	if err := orders.ValidatePatch(p); err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	caller := CallerFrom(r.Context())

	if p.Status != nil {
		cur, err := h.Store.Get(ctx, id)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := orders.CheckTransition(cur, p, h.StrictStatus); err != nil {
			writeError(w, err)
			return
		}
		if !orders.CanTransition(cur.Status, *p.Status) {
			log.Printf("order %d: status moved back %s -> %s by %s", id, cur.Status, *p.Status, caller)
		}
	}

	o, err := h.Store.UpdateFields(ctx, id, p)
	if err != nil {
		writeError(w, err)
		return
	}
	log.Printf("order %d updated by %s: status=%s settled=%t restaurantPaid=%t",
		o.ID, caller, o.Status, o.Settled, o.RestaurantPaid)
	h.cacheSnapshot(ctx, o)
	writeJSON(w, http.StatusOK, o)
}

// cacheSnapshot writes o before the response so a following GET sees it.
func (h *OrdersHandler) cacheSnapshot(ctx context.Context, o orders.Order) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.Set(ctx, o); err != nil {
		log.Printf("order %d: snapshot cache: %v", o.ID, err)
	}
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid id"})
		return 0, false
	}
	return id, true
}

func nonNil(list []orders.Order) []orders.Order {
	if list == nil {
		return []orders.Order{}
	}
	return list
}
