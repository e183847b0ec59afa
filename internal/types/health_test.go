package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthState_IsValid(t *testing.T) {
	assert.True(t, HealthStateHealthy.IsValid())
	assert.True(t, HealthStateDegraded.IsValid())
	assert.True(t, HealthStateUnhealthy.IsValid())
	assert.True(t, HealthStateUnknown.IsValid())
	assert.False(t, HealthState("sick").IsValid())
}

func TestHealthState_UnmarshalRejectsUnknown(t *testing.T) {
	var s HealthState
	require.NoError(t, json.Unmarshal([]byte(`"degraded"`), &s))
	assert.Equal(t, HealthStateDegraded, s)

	assert.Error(t, json.Unmarshal([]byte(`"sick"`), &s))
}

func TestHealthStatus_IsRoutable(t *testing.T) {
	assert.True(t, Healthy("ok").IsRoutable())
	assert.True(t, HealthStatus{State: HealthStateDegraded}.IsRoutable())
	assert.False(t, Unhealthy("down").IsRoutable())
	assert.False(t, HealthStatus{State: HealthStateUnknown}.IsRoutable())
}

func TestHealthConstructors_StampTime(t *testing.T) {
	h := Healthy("registered")
	assert.Equal(t, HealthStateHealthy, h.State)
	assert.Equal(t, "registered", h.Message)
	assert.False(t, h.CheckedAt.IsZero())

	u := Unhealthy("probe failed")
	assert.Equal(t, HealthStateUnhealthy, u.State)
	assert.False(t, u.CheckedAt.IsZero())
}
