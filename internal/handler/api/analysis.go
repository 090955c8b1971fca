package api

import (
	"net/http"

	"github.com/RomuloBreno/project-easy-briefing/internal/analysis"
	"github.com/RomuloBreno/project-easy-briefing/internal/handler"
	"github.com/RomuloBreno/project-easy-briefing/internal/service"
)

// AnalysisHandler serves POST /api/analysis.
type AnalysisHandler struct {
	analysis service.AnalysisService
}

// NewAnalysisHandler creates a new AnalysisHandler.
func NewAnalysisHandler(svc service.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{analysis: svc}
}

type analysisRequest struct {
	ProjectTitle       string   `json:"project_title" validate:"max=200"`
	Niche              string   `json:"niche" validate:"max=200"`
	Content            string   `json:"content" validate:"max=50000"`
	PromptManipulation string   `json:"prompt_manipulation" validate:"max=2000"`
	Files              []string `json:"files" validate:"max=5"`
}

type analysisResponse struct {
	Model    string            `json:"model"`
	Sections analysis.Sections `json:"sections"`
}

// Analyze handles POST /api/analysis.
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}

	var req analysisRequest
	if err := handler.DecodeAndValidate(r, "api.analysis", &req); err != nil {
		handler.ValidationErrorResponse(w, r, err)
		return
	}

	result, err := h.analysis.Analyze(r.Context(), user.ID, service.AnalysisRequest{
		ProjectTitle:       req.ProjectTitle,
		Niche:              req.Niche,
		Content:            req.Content,
		PromptManipulation: req.PromptManipulation,
		Attachments:        req.Files,
	})
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.WriteJSON(w, http.StatusOK, analysisResponse{
		Model:    result.Model,
		Sections: result.Sections,
	})
}
