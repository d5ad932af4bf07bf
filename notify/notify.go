// Package notify sends OS desktop notifications about supervised processes.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jongio/procsup/supervisor"
)

// Notification represents a notification to be displayed.
type Notification struct {
	// Title is the notification title (typically the process name)
	Title string

	// Message is the notification body
	Message string

	// Severity indicates the notification severity
	Severity string // "critical", "warning", "info"

	// Timestamp when the notification was created
	Timestamp time.Time

	// Data contains arbitrary data associated with the notification
	Data map[string]string
}

// Notifier is the interface for OS notification systems.
type Notifier interface {
	// Send sends a notification to the OS notification system.
	Send(ctx context.Context, notification Notification) error

	// IsAvailable returns true if OS notifications are available and permitted.
	IsAvailable() bool

	// Close cleans up notification system resources.
	Close() error
}

// Config contains notification system configuration.
type Config struct {
	// AppName is the application name shown in notifications
	AppName string

	// Timeout for notification operations
	Timeout time.Duration

	// BreakerFailures is the number of consecutive failed sends after which
	// sending is suspended. Zero disables the breaker.
	BreakerFailures int

	// BreakerCooldown is how long sending stays suspended before one trial send.
	BreakerCooldown time.Duration
}

// DefaultConfig returns default notification configuration.
func DefaultConfig() Config {
	return Config{
		AppName:         "procsup",
		Timeout:         5 * time.Second,
		BreakerFailures: 3,
		BreakerCooldown: time.Minute,
	}
}

// New creates a new notifier.
func New(config Config) (Notifier, error) {
	return newPlatformNotifier(config)
}

var (
	ErrNotAvailable       = errors.New("OS notifications not available")
	ErrNotificationFailed = errors.New("failed to send notification")
	ErrTimeout            = errors.New("notification timeout")
)

// ShouldAlert reports whether a process ending in state warrants a notification.
// Killed processes were stopped on request and are not alerted.
func ShouldAlert(state supervisor.State) bool {
	switch state {
	case supervisor.ExitedUnexpectedly, supervisor.ExitedWithError, supervisor.StartFailed:
		return true
	}
	return false
}

// AlertUnexpectedExit tells the user that a supervised process ended badly.
// It does nothing for states ShouldAlert rejects.
func AlertUnexpectedExit(ctx context.Context, n Notifier, name string, state supervisor.State, exitCode *int) error {
	if n == nil || !ShouldAlert(state) {
		return nil
	}
	if !n.IsAvailable() {
		return ErrNotAvailable
	}

	msg := fmt.Sprintf("Process %s", state)
	data := map[string]string{"name": name, "state": state.String()}
	if exitCode != nil {
		msg = fmt.Sprintf("Process %s (exit code %d)", state, *exitCode)
		data["exitCode"] = fmt.Sprint(*exitCode)
	}

	severity := "warning"
	if state == supervisor.ExitedUnexpectedly {
		severity = "critical"
	}

	return n.Send(ctx, Notification{
		Title:     name,
		Message:   msg,
		Severity:  severity,
		Timestamp: time.Now(),
		Data:      data,
	})
}
