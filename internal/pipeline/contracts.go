package pipeline

import (
	"context"
	"strings"

	"storyteller/internal/domain"
)

// GenerationRequest is everything the text stage needs to write a story.
// Avoid keeps the order returned by the fingerprint query.
type GenerationRequest struct {
	StoryID  string
	ChildAge int
	Mood     domain.Mood
	Length   domain.Length
	Theme    string
	Lesson   string
	Avoid    []domain.AvoidPair
}

// GenerationResult is the output of the text stage.
type GenerationResult struct {
	Text       string
	Model      string
	Usage      domain.TokenUsage
	RequestID  string
	ResponseID string
}

// StoryMeta is the structured metadata extracted from a story text.
type StoryMeta struct {
	Title    string `json:"title"`
	Summary  string `json:"summary"`
	Setting  string `json:"setting"`
	Conflict string `json:"conflict"`
	Tone     string `json:"tone"`
}

// Complete reports whether every field carries non-blank text.
func (m StoryMeta) Complete() bool {
	for _, field := range []string{m.Title, m.Summary, m.Setting, m.Conflict, m.Tone} {
		if strings.TrimSpace(field) == "" {
			return false
		}
	}
	return true
}

// MetaResult is the output of the metadata stage.
type MetaResult struct {
	Meta       StoryMeta
	Model      string
	Usage      domain.TokenUsage
	RequestID  string
	ResponseID string
}

// CoverRequest carries the inputs the cover is a pure function of.
type CoverRequest struct {
	Title  string
	Theme  string
	Mood   domain.Mood
	Length domain.Length
}

// UploadInput describes one blob upload.
type UploadInput struct {
	Key         string
	Body        []byte
	ContentType string
}

// TextGenerator writes the story text.
type TextGenerator interface {
	GenerateStory(ctx context.Context, req GenerationRequest) (*GenerationResult, error)
}

// MetaExtractor extracts title, summary and narrative fingerprint from a text.
type MetaExtractor interface {
	ExtractMeta(ctx context.Context, text string) (*MetaResult, error)
}

// CoverBuilder renders the cover image.
type CoverBuilder interface {
	BuildCover(ctx context.Context, req CoverRequest) ([]byte, error)
}

// BlobStore uploads published assets.
type BlobStore interface {
	UploadBuffer(ctx context.Context, in UploadInput) error
	BuildPublicURL(key string) string
}
