package api

import (
	"net/http"
	"time"

	"github.com/RomuloBreno/project-easy-briefing/internal/domain"
	"github.com/RomuloBreno/project-easy-briefing/internal/handler"
	"github.com/RomuloBreno/project-easy-briefing/internal/service"
)

// OrderHandler serves /api/orders.
type OrderHandler struct {
	orders service.OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orders service.OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

type createOrderRequest struct {
	Tier int `json:"tier" validate:"min=1"`
}

type orderResponse struct {
	OrderID           string `json:"order_id"`
	ExternalReference string `json:"external_reference"`
	Tier              int    `json:"tier"`
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
	Status            string `json:"status"`
	StatusDetail      string `json:"status_detail,omitempty"`
	Gateway           string `json:"gateway"`
	CheckoutURL       string `json:"checkout_url,omitempty"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
}

func newOrderResponse(o *domain.Order) orderResponse {
	return orderResponse{
		OrderID:           o.ID.String(),
		ExternalReference: o.ExternalReference,
		Tier:              o.Tier,
		Amount:            o.Amount.StringFixed(2),
		Currency:          o.Currency,
		Status:            string(o.Status),
		StatusDetail:      o.StatusDetail,
		Gateway:           o.Gateway,
		CheckoutURL:       o.CheckoutURL,
		CreatedAt:         o.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:         o.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// Create handles POST /api/orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}

	var req createOrderRequest
	if err := handler.DecodeAndValidate(r, "api.orders.create", &req); err != nil {
		// Any tier below 1 is an invalid plan, not a generic field error.
		if domain.IsValidationError(err) {
			err = domain.ErrInvalidPlan
		}
		handler.ErrorResponse(w, r, err)
		return
	}

	order, err := h.orders.CreateOrder(r.Context(), user.ID, req.Tier)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.WriteJSON(w, http.StatusCreated, newOrderResponse(order))
}

// List handles GET /api/orders.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}

	orders, err := h.orders.ListOrders(r.Context(), user.ID)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	out := make([]orderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, newOrderResponse(&orders[i]))
	}
	handler.WriteJSON(w, http.StatusOK, map[string]any{"orders": out})
}
