package localshare

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opd-ai/localshare/discovery"
	"github.com/opd-ai/localshare/limits"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()
	assert.EqualValues(t, limits.ChunkSize, cfg.ChunkSize)
	assert.EqualValues(t, limits.WriteBufferSize, cfg.WriteBufferSize)
	assert.Equal(t, limits.ProgressUpdateInterval, cfg.ProgressUpdateInterval)
	assert.Equal(t, discovery.ServiceType, cfg.ServiceType)
}
