package pipeline

import (
	"errors"
	"strings"

	"storyteller/internal/domain"
)

const (
	MessageQuotaExceeded = "The story service is busy right now, please try again later."
	MessageAuthInvalid   = "The story service credentials are invalid."
	MessageGeneric       = "Something went wrong while creating the story."
)

// ClassifyError maps a pipeline failure to the message stored on the story.
func ClassifyError(err error) string {
	switch {
	case err == nil:
		return MessageGeneric
	case domain.IsQuotaExceeded(err):
		return MessageQuotaExceeded
	case domain.IsAuthInvalid(err):
		return MessageAuthInvalid
	case errors.Is(err, domain.ErrMetadataIncomplete):
		return domain.ErrMetadataIncomplete.Error()
	case errors.Is(err, domain.ErrGenerationFailed):
		return domain.ErrGenerationFailed.Error()
	case errors.Is(err, ErrStagePanicked):
		return MessageGeneric
	}
	if msg := err.Error(); strings.TrimSpace(msg) != "" {
		return msg
	}
	return MessageGeneric
}
