package constants

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionStateOrder(t *testing.T) {
	assert.True(t, StateReviewed.AtLeast(StateExtracted))
	assert.True(t, StateExtracted.AtLeast(StateExtracted))
	assert.False(t, StateUploaded.AtLeast(StateSchemasConfirmed))
	assert.False(t, SessionState("BOGUS").AtLeast(StateUploaded))
	assert.False(t, SessionState("BOGUS").Valid())
}

func TestMIMEForExt(t *testing.T) {
	assert.Equal(t, "image/jpeg", MIMEForExt(".JPG"))
	assert.Equal(t, "image/png", MIMEForExt("tiff"))
}
