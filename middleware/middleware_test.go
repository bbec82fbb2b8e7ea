package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func echoStep(ctx context.Context, op string) (any, error) {
	return "ok", nil
}

func slowStep(ctx context.Context, op string) (any, error) {
	time.Sleep(200 * time.Millisecond)
	return "ok", nil
}

func TestLogging(t *testing.T) {
	step := LoggingMiddleware(zaptest.NewLogger(t))(echoStep)

	result, err := step(context.Background(), "publish")
	if err != nil {
		t.Fatalf("expect no error, got %v", err)
	}
	if result != "ok" {
		t.Fatalf("expect result 'ok', got %v", result)
	}
}

func TestLoggingPropagatesError(t *testing.T) {
	failing := func(ctx context.Context, op string) (any, error) { return nil, errors.New("boom") }
	step := LoggingMiddleware(zaptest.NewLogger(t))(failing)

	if _, err := step(context.Background(), "publish"); err == nil {
		t.Fatal("expect error to propagate through LoggingMiddleware")
	}
}

func TestTimeoutPass(t *testing.T) {
	step := TimeoutMiddleware(500 * time.Millisecond)(echoStep)

	result, err := step(context.Background(), "publish")
	if err != nil {
		t.Fatalf("expect no error, got %v", err)
	}
	if result != "ok" {
		t.Fatalf("expect result 'ok', got %v", result)
	}
}

func TestTimeoutExceeded(t *testing.T) {
	step := TimeoutMiddleware(50 * time.Millisecond)(slowStep)

	if _, err := step(context.Background(), "publish"); err == nil {
		t.Fatal("expect timeout error")
	}
}

func TestChain(t *testing.T) {
	chained := Chain(LoggingMiddleware(zaptest.NewLogger(t)), TimeoutMiddleware(500*time.Millisecond))
	step := chained(echoStep)

	result, err := step(context.Background(), "publish")
	if err != nil {
		t.Fatalf("expect no error, got %v", err)
	}
	if result != "ok" {
		t.Fatalf("expect result 'ok', got %v", result)
	}
}
