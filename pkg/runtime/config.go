package runtime

import (
	"github.com/fortiblox/X1-Nimbus/pkg/crypto"
	"github.com/fortiblox/X1-Nimbus/pkg/watts"
	"github.com/rs/zerolog"
)

// DefaultMaxCallDepth is the default number of frames a call chain may hold,
// the root frame included.
const DefaultMaxCallDepth = 64

// Config holds runtime configuration. Every node of a network must use the
// same values for everything except Logger.
type Config struct {
	// MaxCallDepth bounds the call stack.
	MaxCallDepth int

	// DefaultWattsLimit is used for transactions that don't set a limit.
	DefaultWattsLimit uint64

	// Schedule prices host primitives.
	Schedule watts.Schedule

	// HashAlgorithm is the algorithm behind Host.Hash.
	HashAlgorithm crypto.Algorithm

	// Logger receives execution logs.
	Logger zerolog.Logger
}

// DefaultConfig returns the default runtime configuration.
func DefaultConfig() Config {
	return Config{
		MaxCallDepth:      DefaultMaxCallDepth,
		DefaultWattsLimit: watts.LimitDefault,
		Schedule:          watts.DefaultSchedule(),
		HashAlgorithm:     crypto.DefaultAlgorithm,
		Logger:            zerolog.Nop(),
	}
}
