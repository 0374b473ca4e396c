package memory

// Experience is one stored exchange. It is never modified after insertion.
type Experience struct {
	ID        TextID
	Embedding Embedding
	Query     string
	Response  string
	Rank      uint32
}

// LinkedExperience pairs an experience with the ids the caller declared
// related when it was pushed. Links may point at ids that are not stored.
type LinkedExperience struct {
	Experience
	Links []TextID
}

// Feedback counts how an experience was rated by the user.
type Feedback struct {
	Positive uint64
	Total    uint64
}

// Score is the share of positive ratings, or 0 when unrated.
func (f Feedback) Score() float64 {
	if f.Total == 0 {
		return 0
	}
	return float64(f.Positive) / float64(f.Total)
}
