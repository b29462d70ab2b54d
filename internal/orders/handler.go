package orders

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/joao-fontenele/orderledger/internal/domain"
	"github.com/joao-fontenele/orderledger/internal/logging"
)

// HeaderUserID carries the authenticated caller, set by the gateway in front
// of this service.
const HeaderUserID = "X-User-ID"

type Service interface {
	CreateOrder(ctx context.Context, in CreateOrderInput) (*domain.Order, error)
	CancelOrder(ctx context.Context, orderID, requesterID string) (*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, in UpdateStatusInput) (*domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	ListByBuyer(ctx context.Context, buyerID string, page domain.Page) ([]domain.Order, error)
	ListBySeller(ctx context.Context, sellerID string, page domain.Page) ([]domain.Order, error)
}

type Handler struct {
	svc    Service
	logger *zap.Logger
}

func NewHandler(svc Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/orders", h.HandleCreate)
	r.Get("/orders/{id}", h.HandleGet)
	r.Post("/orders/{id}/cancel", h.HandleCancel)
	r.Patch("/orders/{id}/status", h.HandleUpdateStatus)
	r.Get("/buyers/{id}/orders", h.HandleListByBuyer)
	r.Get("/sellers/{id}/orders", h.HandleListBySeller)
}

type createOrderRequest struct {
	ShippingAddress string      `json:"shipping_address"`
	Items           []ItemInput `json:"items"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	buyerID := r.Header.Get(HeaderUserID)
	if buyerID == "" {
		h.writeError(w, r, http.StatusUnauthorized, "missing "+HeaderUserID+" header")
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.svc.CreateOrder(r.Context(), CreateOrderInput{
		BuyerID:         buyerID,
		ShippingAddress: req.ShippingAddress,
		Items:           req.Items,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusCreated, order)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	order, err := h.svc.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, order)
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	requesterID := r.Header.Get(HeaderUserID)
	if requesterID == "" {
		h.writeError(w, r, http.StatusUnauthorized, "missing "+HeaderUserID+" header")
		return
	}

	order, err := h.svc.CancelOrder(r.Context(), chi.URLParam(r, "id"), requesterID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, order)
}

type updateStatusRequest struct {
	Status domain.OrderStatus `json:"status"`
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			h.writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		h.writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.svc.UpdateOrderStatus(r.Context(), UpdateStatusInput{
		OrderID: chi.URLParam(r, "id"),
		Status:  req.Status,
		ActorID: r.Header.Get(HeaderUserID),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, order)
}

func (h *Handler) HandleListByBuyer(w http.ResponseWriter, r *http.Request) {
	page, ok := h.page(w, r)
	if !ok {
		return
	}

	orders, err := h.svc.ListByBuyer(r.Context(), chi.URLParam(r, "id"), page)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, orders)
}

func (h *Handler) HandleListBySeller(w http.ResponseWriter, r *http.Request) {
	page, ok := h.page(w, r)
	if !ok {
		return
	}

	orders, err := h.svc.ListBySeller(r.Context(), chi.URLParam(r, "id"), page)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, orders)
}

func (h *Handler) page(w http.ResponseWriter, r *http.Request) (domain.Page, bool) {
	var page domain.Page
	q := r.URL.Query()
	for key, dst := range map[string]*int{"limit": &page.Limit, "offset": &page.Offset} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, r, http.StatusBadRequest, "invalid "+key)
			return domain.Page{}, false
		}
		*dst = n
	}
	return page.Normalize(), true
}

// StatusFor maps a coordinator error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInsufficientStock), errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		logging.FromContext(r.Context(), h.logger).Error("request_failed", zap.String("path", r.URL.Path), zap.Error(err))
		h.writeError(w, r, status, "internal server error")
		return
	}
	h.writeError(w, r, status, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.FromContext(r.Context(), h.logger).Error("response_encode_failed", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.writeJSON(w, r, status, map[string]string{"error": message})
}
