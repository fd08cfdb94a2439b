package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewParticipantIDUnique(t *testing.T) {
	a := NewParticipantID()
	b := NewParticipantID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestRandomDisplayNameFromPool(t *testing.T) {
	name := RandomDisplayName()
	assert.Contains(t, displayNames, name)
}
