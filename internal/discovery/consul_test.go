package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegistration(t *testing.T) {
	reg := Registration("realtime-service", "node1", "10.0.0.5", 8085)
	assert.Equal(t, "realtime-service-node1", reg.ID)
	require.NotNil(t, reg.Check)
	assert.Equal(t, "http://10.0.0.5:8085/v1/health", reg.Check.HTTP)
}

func TestDeregisterWithoutRegisterIsNoop(t *testing.T) {
	r, err := NewRegistrar("127.0.0.1:8500", zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, r.Deregister())
}
