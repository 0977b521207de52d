package job

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	j := Job{ID: "J1", PrinterSystemName: "P1", DocumentType: DocReceipt}
	assert.NoError(t, j.Validate())

	missing := j
	missing.ID = ""
	assert.ErrorIs(t, missing.Validate(), ErrMissingID)

	missing = j
	missing.PrinterSystemName = ""
	assert.ErrorIs(t, missing.Validate(), ErrMissingPrinter)

	bad := j
	bad.DocumentType = "scroll"
	assert.ErrorContains(t, bad.Validate(), "unsupported document type")
}

func TestEffectivePriority(t *testing.T) {
	j := Job{}
	assert.Equal(t, PriorityNormal, j.EffectivePriority())

	j.Options = &Options{Priority: PriorityLow}
	assert.Equal(t, PriorityLow, j.EffectivePriority())

	// The server-assigned priority wins over options.
	j.Priority = PriorityUrgent
	assert.Equal(t, PriorityUrgent, j.EffectivePriority())

	j.Priority = "weird"
	assert.Equal(t, PriorityLow, j.EffectivePriority())
}

func TestPriorityOrdinal(t *testing.T) {
	assert.Less(t, PriorityUrgent.Ordinal(), PriorityNormal.Ordinal())
	assert.Less(t, PriorityNormal.Ordinal(), PriorityLow.Ordinal())
	assert.Equal(t, PriorityNormal.Ordinal(), Priority("").Ordinal())
}

func TestNewTestID(t *testing.T) {
	id := NewTestID()
	assert.True(t, strings.HasPrefix(id, "test-"))
}
