package intake

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyteller/internal/domain"
	"storyteller/internal/infra"
)

const (
	testUser  = "6f1c2a2e-3c55-4f0e-9a55-0c6f1b1e2d11"
	testChild = "0b7e6f0c-45a1-4a2e-8d4f-6f3b7f2c9a10"
)

type fakeStore struct {
	created   []*domain.Story
	createErr error
	statuses  []domain.StoryStatus
	refunds   []int
}

func (s *fakeStore) CreateStory(ctx context.Context, story *domain.Story) error {
	if s.createErr != nil {
		return s.createErr
	}
	story.Status = domain.StoryStatusQueued
	s.created = append(s.created, story)
	return nil
}

func (s *fakeStore) UpdateStatus(ctx context.Context, storyID string, status domain.StoryStatus, errMsg string) error {
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *fakeStore) RefundCredits(ctx context.Context, userID, storyID string, amount int) error {
	s.refunds = append(s.refunds, amount)
	return nil
}

type fixedPricer map[domain.Length]int

func (p fixedPricer) Cost(ctx context.Context, length domain.Length) (int, error) {
	cost, ok := p[length]
	if !ok {
		return 0, domain.ErrInvalidRequest
	}
	return cost, nil
}

type recordingPublisher struct {
	ids []string
	err error
}

func (p *recordingPublisher) Publish(ctx context.Context, storyID string) error {
	if p.err != nil {
		return p.err
	}
	p.ids = append(p.ids, storyID)
	return nil
}

func newTestService(t *testing.T, store *fakeStore, pub *recordingPublisher) *Service {
	t.Helper()
	svc, err := NewService(store, fixedPricer{domain.LengthShort: 1, domain.LengthLong: 3}, pub, infra.NopLogger())
	require.NoError(t, err)
	svc.newID = func() string { return "story-1" }
	return svc
}

func validRequest() Request {
	return Request{
		UserID:  testUser,
		ChildID: testChild,
		Theme:   "  erdő ",
		Mood:    domain.MoodCalm,
		Length:  domain.LengthShort,
	}
}

func TestSubmitCreatesAndPublishes(t *testing.T) {
	store := &fakeStore{}
	pub := &recordingPublisher{}
	svc := newTestService(t, store, pub)

	story, err := svc.Submit(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, "story-1", story.ID)
	assert.Equal(t, "erdő", story.Theme)
	assert.Equal(t, 1, story.CreditCost)
	assert.Equal(t, domain.StoryStatusQueued, story.Status)
	assert.Equal(t, []string{"story-1"}, pub.ids)
	assert.Empty(t, store.refunds)
}

func TestSubmitRejectsInvalidRequests(t *testing.T) {
	cases := map[string]func(*Request){
		"missing user":   func(r *Request) { r.UserID = "" },
		"bad child id":   func(r *Request) { r.ChildID = "child" },
		"blank theme":    func(r *Request) { r.Theme = "   " },
		"unknown mood":   func(r *Request) { r.Mood = "grumpy" },
		"unknown length": func(r *Request) { r.Length = "epic" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			store := &fakeStore{}
			pub := &recordingPublisher{}
			svc := newTestService(t, store, pub)

			req := validRequest()
			mutate(&req)
			_, err := svc.Submit(context.Background(), req)
			assert.ErrorIs(t, err, domain.ErrInvalidRequest)
			assert.Empty(t, store.created)
			assert.Empty(t, pub.ids)
		})
	}
}

func TestSubmitInsufficientCredit(t *testing.T) {
	store := &fakeStore{createErr: domain.ErrInsufficientCredit}
	pub := &recordingPublisher{}
	svc := newTestService(t, store, pub)

	_, err := svc.Submit(context.Background(), validRequest())
	assert.ErrorIs(t, err, domain.ErrInsufficientCredit)
	assert.Empty(t, pub.ids)
	assert.Empty(t, store.refunds)
}

func TestSubmitPublishFailureRefunds(t *testing.T) {
	boom := errors.New("broker gone")
	store := &fakeStore{}
	pub := &recordingPublisher{err: boom}
	svc := newTestService(t, store, pub)

	req := validRequest()
	req.Length = domain.LengthLong
	_, err := svc.Submit(context.Background(), req)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []domain.StoryStatus{domain.StoryStatusFailed}, store.statuses)
	assert.Equal(t, []int{3}, store.refunds)
}

func TestNewServiceRequiresCollaborators(t *testing.T) {
	_, err := NewService(nil, fixedPricer{}, &recordingPublisher{}, infra.NopLogger())
	assert.Error(t, err)
	_, err = NewService(&fakeStore{}, nil, &recordingPublisher{}, infra.NopLogger())
	assert.Error(t, err)
	_, err = NewService(&fakeStore{}, fixedPricer{}, nil, infra.NopLogger())
	assert.Error(t, err)
}
