//go:build !linux

package surfsync

import (
	"errors"

	"go.uber.org/zap"
)

func newPulseProvider(logger *zap.SugaredLogger) (Provider, error) {
	logger.Named("provider").Warn("PulseAudio provider requested on a non-Linux system")

	return nil, errors.New("the pulse provider is only available on Linux")
}
