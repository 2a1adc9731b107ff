package influxdb_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/quiethouse/avrbridge/internal/infrastructure/config"
	"github.com/quiethouse/avrbridge/internal/infrastructure/influxdb"
)

// Values match the local docker-compose InfluxDB.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "avrbridge-dev-token",
		Org:           "avrbridge",
		Bucket:        "metrics",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// connect skips the test when no local InfluxDB answers, otherwise
// returns a connected client that closes with the test.
func connect(t *testing.T, cfg config.InfluxDBConfig) *influxdb.Client {
	t.Helper()
	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Skip("InfluxDB not available, skipping integration test")
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// collectWriteErrors captures async write errors; the returned getter
// reads the latest one.
func collectWriteErrors(client *influxdb.Client) func() error {
	var mu sync.Mutex
	var writeErr error
	client.SetOnError(func(err error) {
		mu.Lock()
		writeErr = err
		mu.Unlock()
	})
	return func() error {
		mu.Lock()
		defer mu.Unlock()
		return writeErr
	}
}

// flushAndCheck forces the batch out and reports any async error.
func flushAndCheck(t *testing.T, client *influxdb.Client, getErr func() error) {
	t.Helper()
	client.Flush()
	time.Sleep(100 * time.Millisecond)
	if err := getErr(); err != nil {
		t.Errorf("async write error = %v", err)
	}
}

func TestConnect(t *testing.T) {
	client := connect(t, testConfig())
	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	if _, err := influxdb.Connect(cfg); !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_NothingListening(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999"

	if _, err := influxdb.Connect(cfg); err == nil {
		t.Fatal("Connect() expected error for unreachable server")
	}
}

func TestConnect_ZeroBatchSettingsUseDefaults(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 0
	cfg.FlushInterval = 0

	client := connect(t, cfg)
	if !client.IsConnected() {
		t.Error("IsConnected() = false with defaulted batch settings")
	}
}

func TestHealthCheck(t *testing.T) {
	client := connect(t, testConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	cancelled, cancel2 := context.WithCancel(context.Background())
	cancel2()
	if err := client.HealthCheck(cancelled); err == nil {
		t.Error("HealthCheck() with cancelled context expected error")
	}
}

func TestWritePropertyMetric(t *testing.T) {
	client := connect(t, testConfig())
	getErr := collectWriteErrors(client)

	client.WritePropertyMetric("volume", 50)
	client.WritePropertyMetric("attenuation", -45)

	flushAndCheck(t, client, getErr)
}

func TestWriteLinkMetric(t *testing.T) {
	client := connect(t, testConfig())
	getErr := collectWriteErrors(client)

	client.WriteLinkMetric(true, 2, 1)
	client.WriteLinkMetric(false, 3, 0)

	flushAndCheck(t, client, getErr)
}

func TestWritePoint(t *testing.T) {
	client := connect(t, testConfig())
	getErr := collectWriteErrors(client)

	client.WritePoint(
		"custom_measurement",
		map[string]string{"source": "test"},
		map[string]interface{}{"value": 99.9, "count": 5},
	)

	flushAndCheck(t, client, getErr)
}

func TestWritePointWithTime(t *testing.T) {
	client := connect(t, testConfig())
	getErr := collectWriteErrors(client)

	client.WritePointWithTime(
		"custom_measurement",
		map[string]string{"source": "test-with-time"},
		map[string]interface{}{"value": 88.8},
		time.Now().Add(-1*time.Hour),
	)

	flushAndCheck(t, client, getErr)
}

func TestClose(t *testing.T) {
	client := connect(t, testConfig())

	client.WritePropertyMetric("power", 1)

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}

	// Writes after Close must be dropped, not panic.
	client.WritePropertyMetric("power", 0)
	client.Flush()
}
