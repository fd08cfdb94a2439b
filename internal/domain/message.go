package domain

// Message is one transcript entry. Transcripts are append-only, ordered by
// arrival and scoped to a single session.
type Message struct {
	From ParticipantID `json:"from"`
	Text string        `json:"text"`
}
