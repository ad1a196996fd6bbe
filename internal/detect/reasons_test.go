package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReasonsDedupeAndOrder(t *testing.T) {
	rs := NewReasons()
	rs.Add("asia_range_ready")
	rs.AddAll("SWEEP_DETECTED_BUY_SIDE", "ASIA_RANGE_READY", "")
	rs.Add("SWEEP_DETECTED_BUY_SIDE")

	assert.Equal(t, []string{"ASIA_RANGE_READY", "SWEEP_DETECTED_BUY_SIDE"}, rs.Codes())
	assert.True(t, rs.Has("asia_range_ready"))
	assert.False(t, rs.Has("ZONE_CREATED"))
}

func TestReasonsCodesIsACopy(t *testing.T) {
	rs := NewReasons()
	rs.Add("CONFIRMED")

	codes := rs.Codes()
	codes[0] = "MUTATED"
	assert.Equal(t, []string{"CONFIRMED"}, rs.Codes())
}
