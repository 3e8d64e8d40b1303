package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRiskScore(t *testing.T) {
	assert.Equal(t, 0, RiskScore(0, 0))
	assert.Equal(t, 0, RiskScore(0, 10))
	assert.Equal(t, 100, RiskScore(10, 10))
	assert.Equal(t, 50, RiskScore(5, 10))
	assert.Equal(t, 33, RiskScore(1, 3))
	assert.Equal(t, 67, RiskScore(2, 3))
}

func TestAdvisory_Degraded(t *testing.T) {
	ok := Advisory{ChunkID: 1, Analysis: "some analysis"}
	assert.False(t, ok.Degraded())

	failed := Advisory{ChunkID: 2, Err: "model timeout"}
	assert.True(t, failed.Degraded())
}
