package process

import (
	"context"
	"testing"
	"time"
)

func TestNewManager_FillsDefaults(t *testing.T) {
	m := NewManager(Config{
		Name:   "gateway",
		Binary: "/usr/sbin/ser2net",
		Args:   []string{"-n", "-c", "/etc/ser2net/avrbridge.yaml"},
	})

	checks := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"RestartDelay", m.config.RestartDelay, 5 * time.Second},
		{"MaxRestartDelay", m.config.MaxRestartDelay, 5 * time.Minute},
		{"StableThreshold", m.config.StableThreshold, 2 * time.Minute},
		{"GracefulTimeout", m.config.GracefulTimeout, 10 * time.Second},
		{"HealthCheckInterval", m.config.HealthCheckInterval, 30 * time.Second},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}

	if m.config.Name != "gateway" {
		t.Errorf("Name = %q, want gateway", m.config.Name)
	}
}

func TestNewManager_KeepsExplicitValues(t *testing.T) {
	m := NewManager(Config{
		Name:                "external-gateway",
		Binary:              "/opt/gateway/bin/socat",
		Args:                []string{"-d", "TCP-LISTEN:14999"},
		RestartDelay:        10 * time.Second,
		MaxRestartDelay:     10 * time.Minute,
		StableThreshold:     5 * time.Minute,
		GracefulTimeout:     30 * time.Second,
		HealthCheckInterval: 60 * time.Second,
		MaxRestartAttempts:  20,
	})

	if m.config.RestartDelay != 10*time.Second {
		t.Errorf("RestartDelay = %v, want 10s", m.config.RestartDelay)
	}
	if m.config.MaxRestartDelay != 10*time.Minute {
		t.Errorf("MaxRestartDelay = %v, want 10m", m.config.MaxRestartDelay)
	}
	if m.config.MaxRestartAttempts != 20 {
		t.Errorf("MaxRestartAttempts = %d, want 20", m.config.MaxRestartAttempts)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("ser2net", "/usr/sbin/ser2net", []string{"-n"})

	if cfg.Name != "ser2net" || cfg.Binary != "/usr/sbin/ser2net" {
		t.Errorf("identity = %q/%q, want ser2net//usr/sbin/ser2net", cfg.Name, cfg.Binary)
	}
	if len(cfg.Args) != 1 || cfg.Args[0] != "-n" {
		t.Errorf("Args = %v, want [-n]", cfg.Args)
	}
	if !cfg.RestartOnFailure {
		t.Error("RestartOnFailure = false, want true")
	}
	if cfg.MaxRestartAttempts != 10 {
		t.Errorf("MaxRestartAttempts = %d, want 10", cfg.MaxRestartAttempts)
	}
}

func TestManager_InitialState(t *testing.T) {
	m := NewManager(Config{Name: "test", Binary: "/bin/true"})

	if got := m.Status(); got != StatusStopped {
		t.Errorf("Status() = %q, want %q", got, StatusStopped)
	}
	if m.IsRunning() {
		t.Error("IsRunning() = true before Start")
	}
	if m.PID() != 0 || m.RestartCount() != 0 || m.Uptime() != 0 {
		t.Errorf("PID/RestartCount/Uptime = %d/%d/%v, want zeros",
			m.PID(), m.RestartCount(), m.Uptime())
	}
	if m.LastError() != nil {
		t.Errorf("LastError() = %v, want nil", m.LastError())
	}
}

func TestManager_StatsOnStoppedProcess(t *testing.T) {
	m := NewManager(Config{Name: "stats-test", Binary: "/bin/echo"})

	stats := m.Stats()
	if stats.Name != "stats-test" {
		t.Errorf("Stats.Name = %q, want stats-test", stats.Name)
	}
	if stats.Status != StatusStopped {
		t.Errorf("Stats.Status = %q, want %q", stats.Status, StatusStopped)
	}
	if stats.PID != 0 || stats.RestartCount != 0 || stats.LastError != "" {
		t.Errorf("unexpected non-zero fields in %+v", stats)
	}
}

func TestManager_StopIsNoopWhenStopped(t *testing.T) {
	m := NewManager(Config{Name: "test", Binary: "/bin/true"})

	if err := m.Stop(); err != nil {
		t.Errorf("Stop() on stopped process error = %v, want nil", err)
	}
}

func TestManager_DoubleStartFails(t *testing.T) {
	m := NewManager(Config{
		Name:   "test",
		Binary: "/bin/sleep",
		Args:   []string{"10"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("first Start() error: %v", err)
	}
	defer m.Stop()

	if err := m.Start(ctx); err == nil {
		t.Error("second Start() expected error, got nil")
	}
}

func TestManager_StartAndStop(t *testing.T) {
	m := NewManager(Config{
		Name:            "test-sleep",
		Binary:          "/bin/sleep",
		Args:            []string{"60"},
		GracefulTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	if !m.IsRunning() {
		t.Error("IsRunning() = false after Start()")
	}
	if m.PID() == 0 {
		t.Error("PID() = 0 after Start()")
	}
	if got := m.Status(); got != StatusRunning {
		t.Errorf("Status() = %q, want %q", got, StatusRunning)
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	// Let the supervise goroutine record the final state.
	time.Sleep(100 * time.Millisecond)

	if m.IsRunning() {
		t.Error("IsRunning() = true after Stop()")
	}
}

func TestManager_MissingBinary(t *testing.T) {
	m := NewManager(Config{Name: "bad-binary", Binary: "/nonexistent/binary"})

	if err := m.Start(context.Background()); err == nil {
		t.Fatal("Start() with missing binary expected error, got nil")
	}
	if got := m.Status(); got != StatusFailed {
		t.Errorf("Status() = %q, want %q", got, StatusFailed)
	}
}

func TestManager_SetLogger(t *testing.T) {
	m := NewManager(Config{Name: "test", Binary: "/bin/true"})
	m.SetLogger(noopLogger{})
}

func TestCalculateBackoffDelay(t *testing.T) {
	m := NewManager(Config{
		Name:            "test",
		Binary:          "/bin/true",
		RestartDelay:    1 * time.Second,
		MaxRestartDelay: 30 * time.Second,
	})

	wants := map[int]time.Duration{
		1: 1 * time.Second,
		2: 2 * time.Second,
		3: 4 * time.Second,
		4: 8 * time.Second,
		5: 16 * time.Second,
		6: 30 * time.Second, // capped
		7: 30 * time.Second, // stays capped
	}

	for attempt := 1; attempt <= 7; attempt++ {
		if got := m.calculateBackoffDelay(attempt); got != wants[attempt] {
			t.Errorf("calculateBackoffDelay(%d) = %v, want %v", attempt, got, wants[attempt])
		}
	}
}

type fatalExitError struct{ recoverable bool }

func (e *fatalExitError) Error() string       { return "exit error" }
func (e *fatalExitError) IsRecoverable() bool { return e.recoverable }

func TestIsRecoverable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, true},
		{"plain error", context.DeadlineExceeded, true},
		{"explicitly recoverable", &fatalExitError{recoverable: true}, true},
		{"explicitly fatal", &fatalExitError{recoverable: false}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRecoverable(tt.err); got != tt.want {
				t.Errorf("IsRecoverable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestManager_OnStartCallback(t *testing.T) {
	started := false
	m := NewManager(Config{
		Name:            "callback-test",
		Binary:          "/bin/sleep",
		Args:            []string{"60"},
		OnStart:         func() { started = true },
		GracefulTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer m.Stop()

	if !started {
		t.Error("OnStart callback was not invoked")
	}
}
