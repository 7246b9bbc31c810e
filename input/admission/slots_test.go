package admission

import (
	"testing"

	"github.com/relex/gotils/promexporter/promreg"
	"github.com/stretchr/testify/assert"
)

var testMetricCreator = promreg.NewMetricFactory("test_admission_", nil, nil)

func TestConnectionSlots(t *testing.T) {
	slots := NewConnectionSlots(2, testMetricCreator)

	first := slots.TryAcquire()
	assert.NotNil(t, first)
	second := slots.TryAcquire()
	assert.NotNil(t, second)
	assert.Equal(t, 2, slots.Active())

	// cap reached, the next attempt must be rejected
	assert.Nil(t, slots.TryAcquire())

	first.Release()
	assert.Equal(t, 1, slots.Active())
	third := slots.TryAcquire()
	assert.NotNil(t, third)

	second.Release()
	third.Release()
	assert.Equal(t, 0, slots.Active())
}

func TestConnectionSlotsDoubleRelease(t *testing.T) {
	slots := NewConnectionSlots(1, testMetricCreator)

	slot := slots.TryAcquire()
	assert.NotNil(t, slot)
	slot.Release()
	slot.Release()
	slot.Release()
	assert.Equal(t, 0, slots.Active())

	again := slots.TryAcquire()
	assert.NotNil(t, again)
	again.Release()
}
