package surfsync

import (
	"sync/atomic"

	"github.com/gen2brain/beeep"
	"go.uber.org/zap"
)

// Notifier provides generic notification sending
type Notifier interface {
	Notify(title string, message string)
}

// ToastNotifier provides toast notifications
type ToastNotifier struct {
	logger  *zap.SugaredLogger
	enabled atomic.Bool
}

func NewToastNotifier(logger *zap.SugaredLogger) (*ToastNotifier, error) {
	logger = logger.Named("notifier")
	tn := &ToastNotifier{logger: logger}
	tn.enabled.Store(true)

	logger.Debug("Created toast notifier instance")

	return tn, nil
}

// SetEnabled turns desktop toasts on or off; disabled toasts are only logged
func (tn *ToastNotifier) SetEnabled(enabled bool) {
	tn.enabled.Store(enabled)
}

// Notify sends a toast notification (or falls back to other types of notification for older Windows versions)
func (tn *ToastNotifier) Notify(title string, message string) {
	if !tn.enabled.Load() {
		tn.logger.Debugw("Notification suppressed", "title", title, "message", message)
		return
	}

	tn.logger.Infow("Sending toast notification", "title", title, "message", message)

	if err := beeep.Notify(title, message, ""); err != nil {
		tn.logger.Errorw("Failed to send toast notification", "error", err)
	}
}
