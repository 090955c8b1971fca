package api

import (
	"net/http"

	"github.com/RomuloBreno/project-easy-briefing/internal/domain"
	"github.com/RomuloBreno/project-easy-briefing/internal/handler"
	"github.com/RomuloBreno/project-easy-briefing/internal/service"
)

// PlanHandler serves the catalog, the caller's plan status and user
// registration.
type PlanHandler struct {
	catalog    *domain.PlanCatalog
	activation service.PlanActivationService
}

// NewPlanHandler creates a new PlanHandler.
func NewPlanHandler(catalog *domain.PlanCatalog, activation service.PlanActivationService) *PlanHandler {
	return &PlanHandler{catalog: catalog, activation: activation}
}

type planResponse struct {
	Tier        int    `json:"tier"`
	Name        string `json:"name"`
	AIModel     string `json:"ai_model"`
	Price       string `json:"price"`
	MaxRequests int    `json:"max_requests_per_cycle"`
}

type planStatusResponse struct {
	UserID          string  `json:"user_id"`
	Tier            int     `json:"tier"`
	PlanName        string  `json:"plan_name"`
	AIModel         string  `json:"ai_model"`
	Active          bool    `json:"active"`
	PlanExpiration  *string `json:"plan_expiration"`
	QuotaRemaining  int     `json:"quota_remaining"`
	MaxRequests     int     `json:"max_requests_per_cycle"`
	PendingOrderRef string  `json:"pending_order_ref,omitempty"`
}

// ListPlans handles GET /api/plans.
func (h *PlanHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans := h.catalog.Plans()
	out := make([]planResponse, 0, len(plans))
	for _, p := range plans {
		out = append(out, planResponse{
			Tier:        p.Tier,
			Name:        p.DisplayName,
			AIModel:     p.AIModel,
			Price:       p.Price.StringFixed(2),
			MaxRequests: p.MaxRequestsPerCycle,
		})
	}
	handler.WriteJSON(w, http.StatusOK, map[string]any{"plans": out})
}

// Status handles GET /api/plan.
func (h *PlanHandler) Status(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}

	status, err := h.activation.PlanStatus(r.Context(), user.ID)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.WriteJSON(w, http.StatusOK, planStatusResponse{
		UserID:          status.UserID.String(),
		Tier:            status.Tier,
		PlanName:        status.PlanName,
		AIModel:         status.AIModel,
		Active:          status.Active,
		PlanExpiration:  formatTime(status.PlanExpiration),
		QuotaRemaining:  status.QuotaRemaining,
		MaxRequests:     status.MaxRequests,
		PendingOrderRef: status.PendingOrderRef,
	})
}

type registerUserRequest struct {
	Email string `json:"email" validate:"omitempty,email,max=254"`
}

// Register handles POST /api/users. It is idempotent: an existing user is
// returned unchanged apart from a blank email being filled.
func (h *PlanHandler) Register(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}

	var req registerUserRequest
	if r.ContentLength != 0 {
		if err := handler.DecodeAndValidate(r, "api.users.register", &req); err != nil {
			handler.ValidationErrorResponse(w, r, err)
			return
		}
	}
	if req.Email == "" {
		req.Email = user.Email
	}

	if _, err := h.activation.EnsureUser(r.Context(), user.ID, req.Email); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	h.Status(w, r)
}
