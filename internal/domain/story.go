package domain

import "time"

// StoryStatus enumerates the pipeline states of a story job.
type StoryStatus string

const (
	StoryStatusQueued          StoryStatus = "queued"
	StoryStatusGeneratingText  StoryStatus = "generating_text"
	StoryStatusExtractingMeta  StoryStatus = "extracting_meta"
	StoryStatusGeneratingCover StoryStatus = "generating_cover"
	StoryStatusUploadingCover  StoryStatus = "uploading_cover"
	StoryStatusReady           StoryStatus = "ready"
	StoryStatusFailed          StoryStatus = "failed"
)

// statusOrder is the only forward path through the pipeline. Failed is
// reachable from every non-terminal state and is therefore not ranked here.
var statusOrder = map[StoryStatus]int{
	StoryStatusQueued:          0,
	StoryStatusGeneratingText:  1,
	StoryStatusExtractingMeta:  2,
	StoryStatusGeneratingCover: 3,
	StoryStatusUploadingCover:  4,
	StoryStatusReady:           5,
}

// Terminal reports whether no further transition is allowed.
func (s StoryStatus) Terminal() bool {
	return s == StoryStatusReady || s == StoryStatusFailed
}

// Valid reports whether s is a known status.
func (s StoryStatus) Valid() bool {
	_, ok := statusOrder[s]
	return ok || s == StoryStatusFailed
}

// CanTransition reports whether a story may move from one status to another.
// Stages only move forward and are never re-entered.
func CanTransition(from, to StoryStatus) bool {
	if from.Terminal() || !from.Valid() {
		return false
	}
	if to == StoryStatusFailed {
		return true
	}
	fromRank, okFrom := statusOrder[from]
	toRank, okTo := statusOrder[to]
	return okFrom && okTo && toRank > fromRank
}

// Mood is the emotional register requested for a story.
type Mood string

const (
	MoodCalm        Mood = "nyugodt"
	MoodCheerful    Mood = "vidam"
	MoodAdventurous Mood = "kalandos"
	MoodSleepy      Mood = "almos"
)

// Length is the requested story length class.
type Length string

const (
	LengthShort  Length = "short"
	LengthMedium Length = "medium"
	LengthLong   Length = "long"
)

// Story is one story-generation job together with the content it produces.
type Story struct {
	ID         string
	UserID     string
	ChildID    string
	Status     StoryStatus
	Theme      string
	Mood       Mood
	Length     Length
	Lesson     string
	CreditCost int

	Title        string
	Summary      string
	Text         string
	Setting      string
	Conflict     string
	Tone         string
	Model        string
	PreviewURL   string
	ErrorMessage string
	ReadyAt      *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ChildProfile is the listener a story is written for.
type ChildProfile struct {
	ID     string
	UserID string
	Name   string
	Age    int
}

// StoryContent is the finalized text and metadata of a story. Model is the
// generation model, not the metadata model.
type StoryContent struct {
	Title    string
	Summary  string
	Text     string
	Setting  string
	Conflict string
	Tone     string
	Model    string
}

// StoryPreview marks a story as published.
type StoryPreview struct {
	PreviewURL string
	ReadyAt    time.Time
}

// StatusEvent is one append-only entry in a story's status history.
type StatusEvent struct {
	StoryID      string
	Status       StoryStatus
	ErrorMessage string
	CreatedAt    time.Time
}

// PreviewAsset is the encoded cover and, once uploaded, its public URL.
type PreviewAsset struct {
	Key         string
	ContentType string
	Data        []byte
	URL         string
}
