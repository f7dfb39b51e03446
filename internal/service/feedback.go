package service

import (
	"context"
	"strings"
	"time"

	"github.com/allensfl/coachingspace-app-sub001/internal/domain"
	"github.com/allensfl/coachingspace-app-sub001/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var feedbackTracer = otel.Tracer("service/feedback")

const maxFeedbackLength = 4000

// FeedbackService forwards beta feedback to the hosted backend.
type FeedbackService struct {
	store    port.FeedbackStore
	notifier port.Notifier
	logger   *zap.Logger
}

// NewFeedbackService creates a feedback service. store may be nil; feedback
// is then only logged.
func NewFeedbackService(store port.FeedbackStore, notifier port.Notifier, logger *zap.Logger) *FeedbackService {
	return &FeedbackService{store: store, notifier: notifier, logger: logger}
}

// SubmitFeedback validates and stores one submission.
func (s *FeedbackService) SubmitFeedback(ctx context.Context, userID string, fb domain.Feedback) error {
	ctx, span := feedbackTracer.Start(ctx, "FeedbackService.SubmitFeedback")
	defer span.End()

	fb.Message = strings.TrimSpace(fb.Message)
	if fb.Message == "" {
		return &domain.ErrValidation{Field: "message", Message: "required"}
	}
	if len(fb.Message) > maxFeedbackLength {
		return &domain.ErrValidation{Field: "message", Message: "too long"}
	}
	if fb.Category == "" {
		fb.Category = "general"
	}
	fb.UserID = userID

	if s.store == nil {
		s.logger.Info("feedback received (no backend configured)",
			zap.String("user_id", userID),
			zap.String("category", fb.Category),
			zap.String("page", fb.Page),
		)
		return nil
	}

	if err := s.store.InsertFeedback(ctx, &fb); err != nil {
		s.logger.Error("feedback submit failed", zap.Error(err))
		return err
	}
	if s.notifier != nil {
		s.notifier.Notify(domain.Notification{
			ID:    uuid.NewString(),
			Level: domain.NotifySuccess,
			Title: "Thanks for your feedback",
			At:    time.Now(),
		})
	}
	return nil
}
