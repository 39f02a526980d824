// Package notify posts desktop notifications. Delivery is best-effort;
// failures are logged and never interrupt a check cycle.
package notify

import (
	"log/slog"
	"os/exec"
	"runtime"
)

// Notifier posts desktop notifications for the current platform.
type Notifier struct {
	enabled bool
	logger  *slog.Logger
}

// New creates a notifier. A disabled notifier silently drops everything.
func New(enabled bool, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{enabled: enabled, logger: logger}
}

// Send posts one notification with a title and message.
func (n *Notifier) Send(title, message string) {
	if !n.enabled {
		return
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("terminal-notifier", "-title", title, "-message", message)
	case "linux":
		cmd = exec.Command("notify-send", title, message)
	default:
		n.logger.Debug("Desktop notifications unsupported on this platform",
			"os", runtime.GOOS, "title", title)
		return
	}

	if err := cmd.Run(); err != nil {
		n.logger.Warn("Failed to post desktop notification",
			"title", title, "error", err)
		return
	}
	n.logger.Debug("Notification posted", "title", title)
}
