package power

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoopResourceSatisfiesInterfaceWithoutPanicking(t *testing.T) {
	r := New()
	r.Acquire()
	r.AttributeCurrentGoroutine()
	r.UnattributeCurrentGoroutine()
	r.Release()
}

func TestRecorderCapturesCallOrder(t *testing.T) {
	r := NewRecorder()
	r.Acquire()
	r.AttributeCurrentGoroutine()
	r.UnattributeCurrentGoroutine()
	r.Release()

	assert.Equal(t, []string{"acquire", "attribute", "unattribute", "release"}, r.Calls())
}
