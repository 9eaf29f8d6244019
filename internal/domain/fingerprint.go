package domain

// Fingerprint summarises the narrative elements of an earlier story for the
// same child. Empty fields are absent.
type Fingerprint struct {
	Setting  string
	Conflict string
	Tone     string
}

// AvoidPair is a setting/conflict combination the generator should not reuse.
type AvoidPair struct {
	Setting  string `json:"setting"`
	Conflict string `json:"conflict"`
}
