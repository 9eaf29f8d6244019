package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storyteller/internal/domain"
	"storyteller/internal/infra"
)

const (
	previewContentType = "image/webp"
	previewFileName    = "preview.webp"
)

// PreviewKey is the blob key of a story's published cover.
func PreviewKey(storyID string) string {
	return fmt.Sprintf("stories/%s/%s", storyID, previewFileName)
}

// ErrStagePanicked wraps a panic raised by a stage collaborator.
var ErrStagePanicked = errors.New("story stage panicked")

// ErrInterrupted marks a story found mid-pipeline on delivery, which means a
// previous attempt died between stages.
var ErrInterrupted = errors.New("story processing was interrupted")

// Options wires the orchestrator's collaborators.
type Options struct {
	Repo              domain.StoryRepository
	Generator         TextGenerator
	Extractor         MetaExtractor
	Covers            CoverBuilder
	Blobs             BlobStore
	FingerprintWindow int
	Now               func() time.Time
	Logger            infra.Logger
}

// Orchestrator runs the story state machine for one job at a time. It keeps
// no state between jobs, so one instance serves every concurrent delivery.
type Orchestrator struct {
	repo      domain.StoryRepository
	generator TextGenerator
	extractor MetaExtractor
	covers    CoverBuilder
	blobs     BlobStore
	window    int
	now       func() time.Time
	logger    infra.Logger
}

func NewOrchestrator(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Repo == nil:
		return nil, errors.New("pipeline: repository is required")
	case opts.Generator == nil:
		return nil, errors.New("pipeline: text generator is required")
	case opts.Extractor == nil:
		return nil, errors.New("pipeline: meta extractor is required")
	case opts.Covers == nil:
		return nil, errors.New("pipeline: cover builder is required")
	case opts.Blobs == nil:
		return nil, errors.New("pipeline: blob store is required")
	}
	window := opts.FingerprintWindow
	if window <= 0 {
		window = DefaultFingerprintWindow
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		repo:      opts.Repo,
		generator: opts.Generator,
		extractor: opts.Extractor,
		covers:    opts.Covers,
		blobs:     opts.Blobs,
		window:    window,
		now:       now,
		logger:    infra.Component(opts.Logger, "pipeline"),
	}, nil
}

// Process runs every stage for storyID. Any failure after the story is
// loaded marks it failed, refunds its full credit cost and is returned
// unchanged so the caller can drop the delivery.
func (o *Orchestrator) Process(ctx context.Context, storyID string) error {
	storyID = strings.TrimSpace(storyID)
	if storyID == "" {
		return fmt.Errorf("%w: story id is required", domain.ErrInvalidEnvelope)
	}

	story, err := o.repo.GetStory(ctx, storyID)
	if err != nil {
		return fmt.Errorf("load story %s: %w", storyID, err)
	}
	if story == nil {
		return fmt.Errorf("%w: story %s", domain.ErrNotFound, storyID)
	}

	logger := o.logger.With().Str("story_id", story.ID).Str("user_id", story.UserID).Logger()

	if story.Status.Terminal() {
		logger.Warn().Str("status", string(story.Status)).Msg("pipeline: story already finished, skipping")
		return nil
	}

	if err := o.runRecovered(ctx, story, logger); err != nil {
		o.compensate(ctx, story, err, logger)
		return err
	}
	logger.Info().Msg("pipeline: story ready")
	return nil
}

// runRecovered turns a panicking stage into an ordinary failure so the story
// is still failed and refunded.
func (o *Orchestrator) runRecovered(ctx context.Context, story *domain.Story, logger infra.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w at %s: %v", ErrStagePanicked, story.Status, r)
		}
	}()
	return o.run(ctx, story, logger)
}

func (o *Orchestrator) run(ctx context.Context, story *domain.Story, logger infra.Logger) error {
	if story.Status != domain.StoryStatusQueued {
		return fmt.Errorf("%w at %s", ErrInterrupted, story.Status)
	}

	child, err := o.repo.GetChildProfile(ctx, story.ChildID)
	if err != nil {
		return fmt.Errorf("load child profile %s: %w", story.ChildID, err)
	}
	if child == nil {
		return fmt.Errorf("%w: child profile %s", domain.ErrNotFound, story.ChildID)
	}

	if err := o.advance(ctx, story, domain.StoryStatusGeneratingText); err != nil {
		return err
	}
	fingerprints, err := o.repo.GetRecentFingerprints(ctx, child.ID, o.window)
	if err != nil {
		return fmt.Errorf("load fingerprints: %w", err)
	}
	req := GenerationRequest{
		StoryID:  story.ID,
		ChildAge: child.Age,
		Mood:     story.Mood,
		Length:   story.Length,
		Theme:    story.Theme,
		Lesson:   story.Lesson,
		Avoid:    BuildAvoidList(fingerprints),
	}
	logger.Debug().Int("avoid_pairs", len(req.Avoid)).Msg("pipeline: generating text")

	generated, err := o.generator.GenerateStory(ctx, req)
	if err != nil {
		return err
	}
	if generated == nil || strings.TrimSpace(generated.Text) == "" {
		return domain.ErrGenerationFailed
	}
	usage := domain.NewUsageTransaction(domain.UsageOperationStoryGeneration, generated.Model,
		generated.Usage, generated.RequestID, generated.ResponseID)
	if err := o.repo.SaveUsageTransaction(ctx, story.ID, usage); err != nil {
		return fmt.Errorf("save generation usage: %w", err)
	}

	if err := o.advance(ctx, story, domain.StoryStatusExtractingMeta); err != nil {
		return err
	}
	extracted, err := o.extractor.ExtractMeta(ctx, generated.Text)
	if err != nil {
		return err
	}
	if extracted == nil || !extracted.Meta.Complete() {
		return domain.ErrMetadataIncomplete
	}
	usage = domain.NewUsageTransaction(domain.UsageOperationMetaExtraction, extracted.Model,
		extracted.Usage, extracted.RequestID, extracted.ResponseID)
	if err := o.repo.SaveUsageTransaction(ctx, story.ID, usage); err != nil {
		return fmt.Errorf("save metadata usage: %w", err)
	}

	meta := extracted.Meta
	if err := o.repo.SaveStoryContent(ctx, story.ID, domain.StoryContent{
		Title:    meta.Title,
		Summary:  meta.Summary,
		Text:     generated.Text,
		Setting:  meta.Setting,
		Conflict: meta.Conflict,
		Tone:     meta.Tone,
		Model:    generated.Model,
	}); err != nil {
		return fmt.Errorf("save story content: %w", err)
	}

	if err := o.advance(ctx, story, domain.StoryStatusGeneratingCover); err != nil {
		return err
	}
	cover, err := o.covers.BuildCover(ctx, CoverRequest{
		Title:  meta.Title,
		Theme:  story.Theme,
		Mood:   story.Mood,
		Length: story.Length,
	})
	if err != nil {
		return fmt.Errorf("build cover: %w", err)
	}

	if err := o.advance(ctx, story, domain.StoryStatusUploadingCover); err != nil {
		return err
	}
	key := PreviewKey(story.ID)
	if err := o.blobs.UploadBuffer(ctx, UploadInput{Key: key, Body: cover, ContentType: previewContentType}); err != nil {
		return fmt.Errorf("upload cover: %w", err)
	}

	preview := domain.StoryPreview{PreviewURL: o.blobs.BuildPublicURL(key), ReadyAt: o.now().UTC()}
	if err := o.repo.SavePreview(ctx, story.ID, preview); err != nil {
		return fmt.Errorf("save preview: %w", err)
	}
	story.Status = domain.StoryStatusReady
	return nil
}

func (o *Orchestrator) advance(ctx context.Context, story *domain.Story, next domain.StoryStatus) error {
	if !domain.CanTransition(story.Status, next) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, story.Status, next)
	}
	if err := o.repo.UpdateStatus(ctx, story.ID, next, ""); err != nil {
		return fmt.Errorf("set status %s: %w", next, err)
	}
	story.Status = next
	return nil
}

// compensate records the failure and refunds the cost charged at intake.
// Errors here are logged only; the cause is what the caller needs.
func (o *Orchestrator) compensate(ctx context.Context, story *domain.Story, cause error, logger infra.Logger) {
	message := ClassifyError(cause)
	logger.Error().Err(cause).Str("status", string(story.Status)).Msg("pipeline: story failed")

	if err := o.repo.UpdateStatus(ctx, story.ID, domain.StoryStatusFailed, message); err != nil {
		logger.Error().Err(err).Msg("pipeline: mark failed")
	}
	story.Status = domain.StoryStatusFailed

	if err := o.repo.RefundCredits(ctx, story.UserID, story.ID, story.CreditCost); err != nil {
		logger.Error().Err(err).Int("amount", story.CreditCost).Msg("pipeline: refund credits")
		return
	}
	logger.Info().Int("amount", story.CreditCost).Msg("pipeline: credits refunded")
}
