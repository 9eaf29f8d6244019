package repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"storyteller/internal/domain"
	"storyteller/internal/infra"
	"storyteller/internal/sqlinline"
)

// StoryRepositoryPG implements domain.StoryRepository and domain.StatusReader
// on top of the sqlinline statements.
type StoryRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewStoryRepository creates a repository over any SQL executor, usually an
// *infra.SQLRunner wrapping the pool.
func NewStoryRepository(sql infra.SQLExecutor) *StoryRepositoryPG {
	return &StoryRepositoryPG{sql: sql}
}

// GetStory fetches a story by id.
func (r *StoryRepositoryPG) GetStory(ctx context.Context, storyID string) (*domain.Story, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectStory, storyID)
	var (
		story  domain.Story
		status string
		mood   string
		length string
	)
	if err := row.Scan(
		&story.ID,
		&story.UserID,
		&story.ChildID,
		&status,
		&story.Theme,
		&mood,
		&length,
		&story.Lesson,
		&story.CreditCost,
		&story.Title,
		&story.Summary,
		&story.Text,
		&story.Setting,
		&story.Conflict,
		&story.Tone,
		&story.Model,
		&story.PreviewURL,
		&story.ErrorMessage,
		&story.ReadyAt,
		&story.CreatedAt,
		&story.UpdatedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	story.Status = domain.StoryStatus(status)
	story.Mood = domain.Mood(mood)
	story.Length = domain.Length(length)
	return &story, nil
}

// GetChildProfile fetches the listener profile a story is written for.
func (r *StoryRepositoryPG) GetChildProfile(ctx context.Context, childID string) (*domain.ChildProfile, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectChildProfile, childID)
	var child domain.ChildProfile
	if err := row.Scan(&child.ID, &child.UserID, &child.Name, &child.Age); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &child, nil
}

// GetRecentFingerprints returns up to limit fingerprints of the child's most
// recent finished stories, newest first.
func (r *StoryRepositoryPG) GetRecentFingerprints(ctx context.Context, childID string, limit int) ([]domain.Fingerprint, error) {
	if limit <= 0 {
		return []domain.Fingerprint{}, nil
	}
	rows, err := r.sql.Query(ctx, sqlinline.QSelectRecentFingerprints, childID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fingerprints := make([]domain.Fingerprint, 0, limit)
	for rows.Next() {
		var fp domain.Fingerprint
		if err := rows.Scan(&fp.Setting, &fp.Conflict, &fp.Tone); err != nil {
			return nil, err
		}
		fingerprints = append(fingerprints, fp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return fingerprints, nil
}

// UpdateStatus moves a story forward and records the change in its history.
// Backward moves and moves out of a terminal state are refused by the
// statement itself.
func (r *StoryRepositoryPG) UpdateStatus(ctx context.Context, storyID string, status domain.StoryStatus, errMsg string) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidTransition, status)
	}
	row := r.sql.QueryRow(ctx, sqlinline.QUpdateStoryStatus, storyID, string(status), strings.TrimSpace(errMsg))
	var updated string
	if err := row.Scan(&updated); err != nil {
		if infra.IsNoRows(err) {
			return fmt.Errorf("%w: story %s cannot move to %s", domain.ErrInvalidTransition, storyID, status)
		}
		return err
	}
	return nil
}

// SaveStoryContent stores the generated text and extracted metadata.
func (r *StoryRepositoryPG) SaveStoryContent(ctx context.Context, storyID string, content domain.StoryContent) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QUpdateStoryContent,
		storyID,
		content.Title,
		content.Summary,
		content.Text,
		content.Setting,
		content.Conflict,
		content.Tone,
		content.Model,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SaveUsageTransaction appends one provider usage record.
func (r *StoryRepositoryPG) SaveUsageTransaction(ctx context.Context, storyID string, tx domain.UsageTransaction) error {
	_, err := r.sql.Exec(ctx, sqlinline.QInsertUsageTransaction,
		storyID,
		string(tx.OperationType),
		tx.Model,
		tx.InputTokens,
		tx.OutputTokens,
		tx.TotalTokens,
		tx.PromptTokens,
		tx.CompletionTokens,
		tx.RequestID,
		tx.ResponseID,
	)
	return err
}

// SavePreview publishes the story: preview URL, ready timestamp and the ready
// status land together.
func (r *StoryRepositoryPG) SavePreview(ctx context.Context, storyID string, preview domain.StoryPreview) error {
	readyAt := preview.ReadyAt
	if readyAt.IsZero() {
		readyAt = time.Now()
	}
	row := r.sql.QueryRow(ctx, sqlinline.QMarkStoryReady, storyID, preview.PreviewURL, readyAt.UTC())
	var updated string
	if err := row.Scan(&updated); err != nil {
		if infra.IsNoRows(err) {
			return fmt.Errorf("%w: story %s is not uploading", domain.ErrInvalidTransition, storyID)
		}
		return err
	}
	return nil
}

// RefundCredits returns the story's cost to the user. Repeated calls for the
// same story are no-ops.
func (r *StoryRepositoryPG) RefundCredits(ctx context.Context, userID, storyID string, amount int) error {
	if amount <= 0 {
		return nil
	}
	_, err := r.sql.Exec(ctx, sqlinline.QRefundCredits, userID, storyID, amount)
	return err
}

// ListStatusEvents returns the status history of a story, oldest first.
func (r *StoryRepositoryPG) ListStatusEvents(ctx context.Context, storyID string) ([]domain.StatusEvent, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectStatusEvents, storyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.StatusEvent
	for rows.Next() {
		var (
			ev     domain.StatusEvent
			status string
		)
		if err := rows.Scan(&ev.StoryID, &status, &ev.ErrorMessage, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.Status = domain.StoryStatus(status)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// CreateStory debits the story's cost and inserts it as queued in a single
// statement.
func (r *StoryRepositoryPG) CreateStory(ctx context.Context, story *domain.Story) error {
	row := r.sql.QueryRow(ctx, sqlinline.QInsertStoryWithDebit,
		story.ID,
		story.UserID,
		story.ChildID,
		story.Theme,
		string(story.Mood),
		string(story.Length),
		story.CreditCost,
		story.Lesson,
	)
	var created string
	if err := row.Scan(&created); err != nil {
		if infra.IsNoRows(err) {
			return domain.ErrInsufficientCredit
		}
		return err
	}
	story.Status = domain.StoryStatusQueued
	return nil
}

// ListPricing returns the credit cost per story length.
func (r *StoryRepositoryPG) ListPricing(ctx context.Context) (map[domain.Length]int, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectStoryPricing)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	prices := make(map[domain.Length]int)
	for rows.Next() {
		var (
			length string
			cost   int
		)
		if err := rows.Scan(&length, &cost); err != nil {
			return nil, err
		}
		prices[domain.Length(length)] = cost
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return prices, nil
}
