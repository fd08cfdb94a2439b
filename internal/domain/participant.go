// Package domain contains entity without logic, just meta-data.
package domain

import (
	"math/rand/v2"

	"github.com/google/uuid"
)

// ParticipantID is an opaque per-client identifier. It is generated once per
// client lifetime and never reassigned; message attribution is a pure function
// of equality with it.
type ParticipantID string

func NewParticipantID() ParticipantID {
	return ParticipantID(uuid.NewString())
}

var displayNames = []string{
	"Alice", "Bob", "Charlie", "David", "Eva", "Frank",
	"Grace", "Henry", "Iris", "Jack",
}

// RandomDisplayName picks a throwaway name for one pairing. Cosmetic only,
// never used for attribution.
func RandomDisplayName() string {
	return displayNames[rand.IntN(len(displayNames))]
}
