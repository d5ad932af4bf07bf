package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/gen2brain/beeep"
	"github.com/sony/gobreaker"
)

// beeepNotifier implements Notifier using the cross-platform beeep library.
type beeepNotifier struct {
	config  Config
	send    func(title, message string) error
	breaker *gobreaker.CircuitBreaker
}

// newPlatformNotifier creates a beeep-based notifier.
func newPlatformNotifier(config Config) (Notifier, error) {
	n := &beeepNotifier{
		config: config,
		send: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
	}
	if config.BreakerFailures > 0 {
		n.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "notify",
			MaxRequests: 1,
			Timeout:     config.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(config.BreakerFailures)
			},
		})
	}
	return n, nil
}

// Send sends a notification using beeep, bounded by the configured timeout.
// Once BreakerFailures sends in a row have failed, Send returns ErrNotAvailable
// without contacting the desktop until BreakerCooldown has passed.
func (n *beeepNotifier) Send(ctx context.Context, notification Notification) error {
	title := notification.Title
	if n.config.AppName != "" {
		title = n.config.AppName + ": " + title
	}

	if n.breaker == nil {
		return n.deliver(ctx, title, notification.Message)
	}
	_, err := n.breaker.Execute(func() (interface{}, error) {
		return nil, n.deliver(ctx, title, notification.Message)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrNotAvailable, err)
	}
	return err
}

func (n *beeepNotifier) deliver(ctx context.Context, title, message string) error {
	if n.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.config.Timeout)
		defer cancel()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- n.send(title, message)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("%w: %w", ErrNotificationFailed, err)
		}
		return nil
	case <-ctx.Done():
		return ErrTimeout
	}
}

// IsAvailable reports false while the breaker is open after repeated failures.
func (n *beeepNotifier) IsAvailable() bool {
	return n.breaker == nil || n.breaker.State() != gobreaker.StateOpen
}

// Close is a no-op for beeep.
func (n *beeepNotifier) Close() error {
	return nil
}
