package ai

// Candidate is the token-frugal view of one pre-scored subsidy sent to the
// model. Field names are kept short on the wire to hold the batch under the
// tier's input ceiling.
type Candidate struct {
	Index    int      `json:"i"`
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Sector   string   `json:"sector,omitempty"`
	Region   string   `json:"region,omitempty"`
	PreScore int      `json:"pre_score"`
	Reasons  []string `json:"reasons,omitempty"`
}

// ProfileSummary is the compact applicant description that accompanies the
// candidate batch.
type ProfileSummary struct {
	Sector   string   `json:"sector"`
	Size     string   `json:"size"`
	Region   string   `json:"region"`
	Keywords []string `json:"keywords,omitempty"`
}

// Evaluation is the model's judgment for one candidate, already validated:
// the id is guaranteed to come from the sent batch and the numeric fields are
// clamped to their documented ranges.
type Evaluation struct {
	ID                 string
	Score              int
	SuccessProbability float64
	Reasons            []string
}

// Usage counts the provider-reported tokens for the single refinement call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}
