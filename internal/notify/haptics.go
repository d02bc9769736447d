package notify

import (
	"time"

	"go.uber.org/zap"
)

var (
	successPattern = []time.Duration{200 * time.Millisecond, 100 * time.Millisecond, 200 * time.Millisecond}
	errorPattern   = []time.Duration{200 * time.Millisecond}
)

// Haptics es la capacidad opcional de vibracion del runtime. Se consulta
// con Available antes de usarla.
type Haptics interface {
	Available() bool
	Vibrate(pattern []time.Duration) error
}

type noHaptics struct{}

// NoHaptics representa un runtime sin vibracion.
func NoHaptics() Haptics { return noHaptics{} }

func (noHaptics) Available() bool                 { return false }
func (noHaptics) Vibrate(_ []time.Duration) error { return nil }

// LogHaptics registra los pulsos en lugar de mover hardware.
type LogHaptics struct {
	logger *zap.Logger
}

func NewLogHaptics(logger *zap.Logger) *LogHaptics {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogHaptics{logger: logger}
}

func (h *LogHaptics) Available() bool { return true }

func (h *LogHaptics) Vibrate(pattern []time.Duration) error {
	h.logger.Debug("haptic pulse", zap.Durations("pattern", pattern))
	return nil
}
