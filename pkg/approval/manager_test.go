package approval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codelab-platform/agent-control-plane/pkg/risk"
)

func TestAssessPlanRiskByCostAndDuration(t *testing.T) {
	assert.Equal(t, risk.High, AssessPlanRisk(1.01, 0, 1))
	assert.Equal(t, risk.High, AssessPlanRisk(0, 301, 1))
	assert.Equal(t, risk.Medium, AssessPlanRisk(0.11, 0, 1))
	assert.Equal(t, risk.Medium, AssessPlanRisk(0, 31, 1))
	assert.Equal(t, risk.Low, AssessPlanRisk(0.01, 1, 1))
}

func TestAssessPlanRiskByTaskCount(t *testing.T) {
	assert.Equal(t, risk.Medium, AssessPlanRisk(0.01, 1, 3))
	assert.Equal(t, risk.Low, AssessPlanRisk(0.01, 1, 2))
}

func TestShouldAutoApprove(t *testing.T) {
	assert.True(t, ShouldAutoApprove(risk.Low, 0.05))
	assert.False(t, ShouldAutoApprove(risk.Low, 0.10))
	assert.False(t, ShouldAutoApprove(risk.Medium, 0.01))
}
