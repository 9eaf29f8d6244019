package pipeline

import (
	"context"
	"sync"

	"storyteller/internal/domain"
)

type refundCall struct {
	UserID  string
	StoryID string
	Amount  int
}

type statusCall struct {
	Status  domain.StoryStatus
	Message string
}

type fakeRepo struct {
	mu           sync.Mutex
	stories      map[string]*domain.Story
	children     map[string]*domain.ChildProfile
	fingerprints map[string][]domain.Fingerprint

	statuses     []statusCall
	usage        []domain.UsageTransaction
	content      *domain.StoryContent
	preview      *domain.StoryPreview
	refunds      []refundCall
	fpLimit      int
	updateErrFor domain.StoryStatus
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		stories:      map[string]*domain.Story{},
		children:     map[string]*domain.ChildProfile{},
		fingerprints: map[string][]domain.Fingerprint{},
	}
}

func (r *fakeRepo) GetStory(ctx context.Context, storyID string) (*domain.Story, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stories[storyID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *s
	return &clone, nil
}

func (r *fakeRepo) GetChildProfile(ctx context.Context, childID string) (*domain.ChildProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.children[childID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

func (r *fakeRepo) GetRecentFingerprints(ctx context.Context, childID string, limit int) ([]domain.Fingerprint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fpLimit = limit
	return r.fingerprints[childID], nil
}

func (r *fakeRepo) UpdateStatus(ctx context.Context, storyID string, status domain.StoryStatus, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, statusCall{Status: status, Message: errMsg})
	if r.updateErrFor != "" && r.updateErrFor == status {
		return errUpdate
	}
	return nil
}

func (r *fakeRepo) SaveStoryContent(ctx context.Context, storyID string, content domain.StoryContent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.content = &content
	return nil
}

func (r *fakeRepo) SaveUsageTransaction(ctx context.Context, storyID string, tx domain.UsageTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usage = append(r.usage, tx)
	return nil
}

func (r *fakeRepo) SavePreview(ctx context.Context, storyID string, preview domain.StoryPreview) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preview = &preview
	return nil
}

func (r *fakeRepo) RefundCredits(ctx context.Context, userID, storyID string, amount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refunds = append(r.refunds, refundCall{UserID: userID, StoryID: storyID, Amount: amount})
	return nil
}

func (r *fakeRepo) statusSequence() []domain.StoryStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.StoryStatus, 0, len(r.statuses))
	for _, s := range r.statuses {
		out = append(out, s.Status)
	}
	return out
}

type fakeGenerator struct {
	result *GenerationResult
	err    error
	got    *GenerationRequest
}

func (g *fakeGenerator) GenerateStory(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	g.got = &req
	return g.result, g.err
}

type fakeExtractor struct {
	result *MetaResult
	err    error
	calls  int
}

func (e *fakeExtractor) ExtractMeta(ctx context.Context, text string) (*MetaResult, error) {
	e.calls++
	return e.result, e.err
}

type fakeCovers struct {
	data      []byte
	err       error
	panicWith any
	got       *CoverRequest
}

func (c *fakeCovers) BuildCover(ctx context.Context, req CoverRequest) ([]byte, error) {
	c.got = &req
	if c.panicWith != nil {
		panic(c.panicWith)
	}
	return c.data, c.err
}

type fakeBlobs struct {
	uploads []UploadInput
	err     error
}

func (b *fakeBlobs) UploadBuffer(ctx context.Context, in UploadInput) error {
	if b.err != nil {
		return b.err
	}
	b.uploads = append(b.uploads, in)
	return nil
}

func (b *fakeBlobs) BuildPublicURL(key string) string {
	return "https://cdn.example.com/" + key
}
