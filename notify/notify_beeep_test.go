package notify

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestNotifier(t *testing.T, config Config, send func(title, message string) error) *beeepNotifier {
	t.Helper()
	notifier, err := newPlatformNotifier(config)
	if err != nil {
		t.Fatalf("failed to create beeep notifier: %v", err)
	}
	bn, ok := notifier.(*beeepNotifier)
	if !ok {
		t.Fatal("expected beeepNotifier type")
	}
	bn.send = send
	return bn
}

func TestBeeepNotifier_New(t *testing.T) {
	config := DefaultConfig()
	notifier, err := New(config)
	if err != nil {
		t.Fatalf("failed to create notifier: %v", err)
	}
	if !notifier.IsAvailable() {
		t.Error("expected IsAvailable to return true")
	}
	if err := notifier.Close(); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestBeeepNotifier_SendPrefixesAppName(t *testing.T) {
	var gotTitle, gotMsg string
	bn := newTestNotifier(t, DefaultConfig(), func(title, message string) error {
		gotTitle, gotMsg = title, message
		return nil
	})

	err := bn.Send(context.Background(), Notification{Title: "api", Message: "down"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if gotTitle != "procsup: api" {
		t.Errorf("title = %q, want %q", gotTitle, "procsup: api")
	}
	if gotMsg != "down" {
		t.Errorf("message = %q, want %q", gotMsg, "down")
	}
}

func TestBeeepNotifier_SendError(t *testing.T) {
	bn := newTestNotifier(t, DefaultConfig(), func(string, string) error {
		return errors.New("dbus unavailable")
	})

	err := bn.Send(context.Background(), Notification{Title: "api"})
	if !errors.Is(err, ErrNotificationFailed) {
		t.Errorf("Send() error = %v, want ErrNotificationFailed", err)
	}
}

func TestBeeepNotifier_SendTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	bn := newTestNotifier(t, Config{AppName: "procsup", Timeout: 20 * time.Millisecond}, func(string, string) error {
		<-release
		return nil
	})

	err := bn.Send(context.Background(), Notification{Title: "api"})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Send() error = %v, want ErrTimeout", err)
	}
}

func TestBeeepNotifier_BreakerSuspendsAfterFailures(t *testing.T) {
	calls := 0
	config := Config{AppName: "procsup", Timeout: time.Second, BreakerFailures: 2, BreakerCooldown: time.Hour}
	bn := newTestNotifier(t, config, func(string, string) error {
		calls++
		return errors.New("dbus unavailable")
	})

	for i := 0; i < 2; i++ {
		if err := bn.Send(context.Background(), Notification{Title: "api"}); !errors.Is(err, ErrNotificationFailed) {
			t.Fatalf("send %d: error = %v, want ErrNotificationFailed", i, err)
		}
	}
	if bn.IsAvailable() {
		t.Error("expected IsAvailable to be false once the breaker opens")
	}

	err := bn.Send(context.Background(), Notification{Title: "api"})
	if !errors.Is(err, ErrNotAvailable) {
		t.Errorf("Send() error = %v, want ErrNotAvailable", err)
	}
	if calls != 2 {
		t.Errorf("send called %d times, want 2", calls)
	}
}

func TestBeeepNotifier_BreakerDisabled(t *testing.T) {
	bn := newTestNotifier(t, Config{AppName: "procsup", Timeout: time.Second}, func(string, string) error {
		return errors.New("dbus unavailable")
	})
	for i := 0; i < 5; i++ {
		_ = bn.Send(context.Background(), Notification{Title: "api"})
	}
	if !bn.IsAvailable() {
		t.Error("expected IsAvailable to stay true without a breaker")
	}
}
