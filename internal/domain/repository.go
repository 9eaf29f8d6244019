package domain

import "context"

// StoryRepository is the durable state owner for the story pipeline. Status
// updates and refunds must be atomic; RefundCredits must be idempotent per
// story.
type StoryRepository interface {
	GetStory(ctx context.Context, storyID string) (*Story, error)
	GetChildProfile(ctx context.Context, childID string) (*ChildProfile, error)
	GetRecentFingerprints(ctx context.Context, childID string, limit int) ([]Fingerprint, error)
	UpdateStatus(ctx context.Context, storyID string, status StoryStatus, errMsg string) error
	SaveStoryContent(ctx context.Context, storyID string, content StoryContent) error
	SaveUsageTransaction(ctx context.Context, storyID string, tx UsageTransaction) error
	SavePreview(ctx context.Context, storyID string, preview StoryPreview) error
	RefundCredits(ctx context.Context, userID, storyID string, amount int) error
}

// StatusReader exposes the status history for polling clients.
type StatusReader interface {
	GetStory(ctx context.Context, storyID string) (*Story, error)
	ListStatusEvents(ctx context.Context, storyID string) ([]StatusEvent, error)
}
