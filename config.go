package localshare

import (
	"time"

	"github.com/opd-ai/localshare/discovery"
	"github.com/opd-ai/localshare/limits"
)

// Config collects the tunables the transfer engine exposes. Values
// default to the package-level constants in limits; an embedding
// application overrides whichever fields its settings surface lets the
// user change, and NewNode threads them into the Upload/Download/Manager/
// Notifier/discovery components it constructs.
type Config struct {
	ChunkSize              int64
	WriteBufferSize        int64
	ProgressUpdateInterval time.Duration
	RateUpdateInterval     time.Duration
	RateWindowSpan         time.Duration
	RateWindowMinSamples   int
	ServiceType            string
}

// NewConfig returns a Config populated with localshare's built-in
// defaults.
func NewConfig() *Config {
	return &Config{
		ChunkSize:              limits.ChunkSize,
		WriteBufferSize:        limits.WriteBufferSize,
		ProgressUpdateInterval: limits.ProgressUpdateInterval,
		RateUpdateInterval:     limits.RateUpdateInterval,
		RateWindowSpan:         limits.RateWindowSpan,
		RateWindowMinSamples:   limits.RateWindowMinSamples,
		ServiceType:            discovery.ServiceType,
	}
}
