package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jongio/procsup/supervisor"
)

type recordingNotifier struct {
	available bool
	sent      []Notification
}

func (r *recordingNotifier) Send(_ context.Context, n Notification) error {
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) IsAvailable() bool { return r.available }
func (r *recordingNotifier) Close() error      { return nil }

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.AppName != "procsup" {
		t.Errorf("expected app name 'procsup', got %s", config.AppName)
	}
	if config.Timeout != 5*time.Second {
		t.Errorf("expected timeout 5s, got %v", config.Timeout)
	}
	if config.BreakerFailures != 3 || config.BreakerCooldown != time.Minute {
		t.Errorf("unexpected breaker settings: %d failures, %v cooldown", config.BreakerFailures, config.BreakerCooldown)
	}
}

func TestShouldAlert(t *testing.T) {
	tests := []struct {
		state supervisor.State
		want  bool
	}{
		{supervisor.Running, false},
		{supervisor.ExitedSuccessfully, false},
		{supervisor.ExitedKilled, false},
		{supervisor.ExitedWithError, true},
		{supervisor.ExitedUnexpectedly, true},
		{supervisor.StartFailed, true},
	}
	for _, tt := range tests {
		if got := ShouldAlert(tt.state); got != tt.want {
			t.Errorf("ShouldAlert(%s) = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestAlertUnexpectedExit(t *testing.T) {
	n := &recordingNotifier{available: true}
	code := 137

	err := AlertUnexpectedExit(context.Background(), n, "api", supervisor.ExitedUnexpectedly, &code)
	if err != nil {
		t.Fatalf("AlertUnexpectedExit() error = %v", err)
	}
	if len(n.sent) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(n.sent))
	}

	got := n.sent[0]
	if got.Title != "api" {
		t.Errorf("Title = %q, want api", got.Title)
	}
	if got.Message != "Process exited-unexpectedly (exit code 137)" {
		t.Errorf("Message = %q", got.Message)
	}
	if got.Severity != "critical" {
		t.Errorf("Severity = %q, want critical", got.Severity)
	}
	if got.Data["exitCode"] != "137" {
		t.Errorf("Data[exitCode] = %q, want 137", got.Data["exitCode"])
	}
}

func TestAlertUnexpectedExitSkipsHealthyStates(t *testing.T) {
	n := &recordingNotifier{available: true}
	if err := AlertUnexpectedExit(context.Background(), n, "job", supervisor.ExitedSuccessfully, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := AlertUnexpectedExit(context.Background(), nil, "job", supervisor.ExitedWithError, nil); err != nil {
		t.Fatalf("nil notifier should be ignored: %v", err)
	}
	if len(n.sent) != 0 {
		t.Errorf("expected no notifications, got %d", len(n.sent))
	}
}

func TestAlertUnexpectedExitUnavailable(t *testing.T) {
	n := &recordingNotifier{}
	err := AlertUnexpectedExit(context.Background(), n, "job", supervisor.ExitedWithError, nil)
	if !errors.Is(err, ErrNotAvailable) {
		t.Errorf("error = %v, want ErrNotAvailable", err)
	}
}
