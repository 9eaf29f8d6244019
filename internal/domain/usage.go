package domain

// UsageOperation tags which provider call a usage transaction belongs to.
type UsageOperation string

const (
	UsageOperationStoryGeneration UsageOperation = "story_generation"
	UsageOperationMetaExtraction  UsageOperation = "meta_extraction"
)

// TokenUsage is the raw token accounting reported by a provider. Providers
// populate either the input/output pair or the legacy prompt/completion pair;
// zero means not reported.
type TokenUsage struct {
	InputTokens      int
	OutputTokens     int
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// UsageTransaction is the immutable record of one provider call.
type UsageTransaction struct {
	OperationType    UsageOperation
	Model            string
	InputTokens      int
	OutputTokens     int
	TotalTokens      int
	PromptTokens     int
	CompletionTokens int
	RequestID        string
	ResponseID       string
}

// NewUsageTransaction normalises provider usage into a transaction. Input and
// output fall back to the legacy prompt/completion counts, then to zero. The
// total is always recorded, derived from the parts when the provider omits it.
func NewUsageTransaction(op UsageOperation, model string, usage TokenUsage, requestID, responseID string) UsageTransaction {
	input := firstPositive(usage.InputTokens, usage.PromptTokens)
	output := firstPositive(usage.OutputTokens, usage.CompletionTokens)
	total := usage.TotalTokens
	if total <= 0 {
		total = input + output
	}
	return UsageTransaction{
		OperationType:    op,
		Model:            model,
		InputTokens:      input,
		OutputTokens:     output,
		TotalTokens:      total,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		RequestID:        requestID,
		ResponseID:       responseID,
	}
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
