package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/RomuloBreno/project-easy-briefing/internal/analysis"
	"github.com/RomuloBreno/project-easy-briefing/internal/domain"
	"github.com/RomuloBreno/project-easy-briefing/internal/telemetry"
	"github.com/google/uuid"
)

// AnalysisService runs briefing analyses behind the quota gate.
type AnalysisService interface {
	// Analyze checks the quota, runs the analyzer with the plan's model and
	// consumes one request on success. A failed analysis consumes nothing.
	Analyze(ctx context.Context, userID uuid.UUID, req AnalysisRequest) (*AnalysisResult, error)
}

// AnalysisRequest is a briefing to analyse.
type AnalysisRequest struct {
	ProjectTitle string
	Niche        string
	Content      string

	// Premium fields, ignored unless the user's plan is active.
	PromptManipulation string
	Attachments        []string
}

// AnalysisResult is a completed analysis.
type AnalysisResult struct {
	Model    string
	Sections analysis.Sections
	Raw      string
}

type analysisService struct {
	users        domain.UserPlanStore
	quota        QuotaEnforcer
	activation   PlanActivationService
	catalog      *domain.PlanCatalog
	analyzer     analysis.Analyzer
	systemPrompt string
	logger       *slog.Logger
	now          func() time.Time
}

// NewAnalysisService creates a new AnalysisService.
func NewAnalysisService(
	users domain.UserPlanStore,
	quota QuotaEnforcer,
	activation PlanActivationService,
	catalog *domain.PlanCatalog,
	analyzer analysis.Analyzer,
	systemPrompt string,
	logger *slog.Logger,
) AnalysisService {
	return &analysisService{
		users:        users,
		quota:        quota,
		activation:   activation,
		catalog:      catalog,
		analyzer:     analyzer,
		systemPrompt: systemPrompt,
		logger:       logger.With("service", "analysis"),
		now:          time.Now,
	}
}

func (s *analysisService) Analyze(ctx context.Context, userID uuid.UUID, req AnalysisRequest) (*AnalysisResult, error) {
	const op = "service.AnalysisService.Analyze"

	user, err := s.users.GetUserPlan(ctx, userID)
	if err != nil {
		return nil, storeError(op, err)
	}

	premium := s.activation.IsPlanActive(user, s.now())

	briefing := analysis.Briefing{
		ProjectTitle: strings.TrimSpace(req.ProjectTitle),
		Niche:        strings.TrimSpace(req.Niche),
		Content:      strings.TrimSpace(req.Content),
	}
	var attachments string
	if premium {
		briefing.PromptManipulation = strings.TrimSpace(req.PromptManipulation)
		attachments, err = analysis.DecodeAttachments(req.Attachments)
		if err != nil {
			return nil, domain.Invalid(op, "Only text or PDF attachments are allowed")
		}
	}
	if briefing.Content == "" && attachments == "" {
		return nil, ErrContentRequired
	}

	ok, err := s.quota.CheckQuota(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		recordQuotaExceeded(user.Tier)
		return nil, domain.ErrQuotaExceeded.WithOp(op)
	}

	plan := s.catalog.Get(domain.TierFree)
	if premium {
		plan = s.catalog.Get(user.Tier)
	}

	spanCtx, finish := telemetry.StartSpan(ctx, "analysis.model", plan.AIModel)
	resp, err := s.analyzer.Analyze(spanCtx, analysis.Request{
		Model:        plan.AIModel,
		SystemPrompt: s.systemPrompt,
		UserPrompt:   analysis.BuildPrompt(briefing, attachments),
	})
	finish()
	if err != nil {
		s.logger.ErrorContext(ctx, "analysis failed",
			"user_id", userID,
			"model", plan.AIModel,
			"error", err,
		)
		telemetry.CaptureErrorFromContext(ctx, err, map[string]interface{}{
			"user_id": userID.String(),
			"model":   plan.AIModel,
		})
		return nil, ErrAnalyzerUnavailable.Wrap(op, err)
	}

	if err := s.quota.DecrementQuota(ctx, userID); err != nil {
		// The analysis already ran; the user keeps the result either way.
		if errors.Is(err, domain.ErrQuotaExceeded) {
			s.logger.WarnContext(ctx, "quota drained by a concurrent analysis", "user_id", userID)
		} else {
			s.logger.ErrorContext(ctx, "failed to consume quota after analysis", "user_id", userID, "error", err)
			telemetry.CaptureErrorFromContext(ctx, err, map[string]interface{}{"user_id": userID.String()})
		}
	} else {
		recordQuotaConsumed(user.Tier)
	}

	s.logger.InfoContext(ctx, "analysis completed",
		"user_id", userID,
		"model", plan.AIModel,
		"premium", premium,
		"tokens", resp.TotalTokens,
	)

	return &AnalysisResult{
		Model:    plan.AIModel,
		Sections: analysis.ParseSections(resp.Content),
		Raw:      resp.Content,
	}, nil
}
