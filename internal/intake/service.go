// Package intake accepts story requests: it prices them, debits the owner's
// credits together with inserting the queued story, and publishes the job
// reference for the worker.
package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"storyteller/internal/domain"
	"storyteller/internal/infra"
)

// MessagePublishFailed is stored on a story whose job reference never reached
// the queue.
const MessagePublishFailed = "The story could not be queued, your credits were returned."

// Request is a story order as submitted by a client.
type Request struct {
	UserID  string        `json:"userId" validate:"required,uuid"`
	ChildID string        `json:"childId" validate:"required,uuid"`
	Theme   string        `json:"theme" validate:"required,max=120"`
	Mood    domain.Mood   `json:"mood" validate:"required,oneof=nyugodt vidam kalandos almos"`
	Length  domain.Length `json:"length" validate:"required,oneof=short medium long"`
	Lesson  string        `json:"lesson,omitempty" validate:"max=280"`
}

// Store persists new stories. CreateStory debits CreditCost and inserts the
// story as queued atomically, returning domain.ErrInsufficientCredit when the
// balance does not cover it.
type Store interface {
	CreateStory(ctx context.Context, story *domain.Story) error
	UpdateStatus(ctx context.Context, storyID string, status domain.StoryStatus, errMsg string) error
	RefundCredits(ctx context.Context, userID, storyID string, amount int) error
}

// Pricer returns the credit cost for a story length.
type Pricer interface {
	Cost(ctx context.Context, length domain.Length) (int, error)
}

// Publisher hands a story id to the work queue.
type Publisher interface {
	Publish(ctx context.Context, storyID string) error
}

type Service struct {
	store     Store
	pricer    Pricer
	publisher Publisher
	validate  *validator.Validate
	newID     func() string
	logger    infra.Logger
}

func NewService(store Store, pricer Pricer, publisher Publisher, logger infra.Logger) (*Service, error) {
	switch {
	case store == nil:
		return nil, errors.New("intake: store is required")
	case pricer == nil:
		return nil, errors.New("intake: pricer is required")
	case publisher == nil:
		return nil, errors.New("intake: publisher is required")
	}
	return &Service{
		store:     store,
		pricer:    pricer,
		publisher: publisher,
		validate:  validator.New(),
		newID:     uuid.NewString,
		logger:    infra.Component(logger, "intake"),
	}, nil
}

// Submit creates and enqueues one story. When publishing fails the story is
// failed and refunded here, since no worker will ever see it.
func (s *Service) Submit(ctx context.Context, req Request) (*domain.Story, error) {
	req.Theme = strings.TrimSpace(req.Theme)
	req.Lesson = strings.TrimSpace(req.Lesson)
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}

	cost, err := s.pricer.Cost(ctx, req.Length)
	if err != nil {
		return nil, err
	}

	story := &domain.Story{
		ID:         s.newID(),
		UserID:     req.UserID,
		ChildID:    req.ChildID,
		Theme:      req.Theme,
		Mood:       req.Mood,
		Length:     req.Length,
		Lesson:     req.Lesson,
		CreditCost: cost,
	}
	logger := s.logger.With().Str("story_id", story.ID).Str("user_id", story.UserID).Logger()

	if err := s.store.CreateStory(ctx, story); err != nil {
		return nil, fmt.Errorf("create story: %w", err)
	}
	logger.Info().Int("credit_cost", cost).Str("length", string(story.Length)).Msg("intake: story created")

	if err := s.publisher.Publish(ctx, story.ID); err != nil {
		logger.Error().Err(err).Msg("intake: publish failed")
		if uerr := s.store.UpdateStatus(ctx, story.ID, domain.StoryStatusFailed, MessagePublishFailed); uerr != nil {
			logger.Error().Err(uerr).Msg("intake: mark failed")
		}
		if rerr := s.store.RefundCredits(ctx, story.UserID, story.ID, story.CreditCost); rerr != nil {
			logger.Error().Err(rerr).Msg("intake: refund credits")
		}
		return nil, fmt.Errorf("publish story: %w", err)
	}
	return story, nil
}
