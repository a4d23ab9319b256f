package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/caz-payments/internal/config"
)

type blockingService struct {
	name    string
	started atomic.Bool
	stopped atomic.Bool
	failErr error
}

func (s *blockingService) Name() string { return s.name }

func (s *blockingService) Start(ctx context.Context) error {
	s.started.Store(true)
	if s.failErr != nil {
		return s.failErr
	}
	<-ctx.Done()
	return nil
}

func (s *blockingService) Stop(context.Context) error {
	s.stopped.Store(true)
	return nil
}

func TestRunnerStopsAllServicesOnCancel(t *testing.T) {
	a := &blockingService{name: "a"}
	b := &blockingService{name: "b"}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewRunner(a, b).Run(ctx, time.Second, nil)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("cancelled runner should return nil, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("runner did not stop")
	}
	if !a.stopped.Load() || !b.stopped.Load() {
		t.Fatalf("all services should be stopped")
	}
}

func TestRunnerReturnsFirstServiceError(t *testing.T) {
	failure := errors.New("bind failed")
	ok := &blockingService{name: "ok"}
	bad := &blockingService{name: "bad", failErr: failure}

	err := NewRunner(ok, bad).Run(context.Background(), time.Second, nil)
	if !errors.Is(err, failure) {
		t.Fatalf("want bind failure, got %v", err)
	}
	if !ok.stopped.Load() {
		t.Fatalf("healthy service should be stopped after a failure")
	}
}

func TestFuncServiceWaitsForContext(t *testing.T) {
	ran := make(chan struct{})
	svc := NewFuncService("listener", func(context.Context) { close(ran) })
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()

	<-ran
	select {
	case <-done:
		t.Fatalf("func service should block until ctx is done")
	case <-time.After(20 * time.Millisecond):
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("start returned %v", err)
	}
}

func TestBuildRunnerRejectsNilConfig(t *testing.T) {
	if _, _, err := BuildRunner(nil, ModeAll, nil); err == nil {
		t.Fatalf("nil config should fail")
	}
}

type orderedStopService struct {
	name  string
	order *[]string
	err   error
}

func (s *orderedStopService) Name() string { return s.name }

func (s *orderedStopService) Start(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (s *orderedStopService) Stop(context.Context) error {
	*s.order = append(*s.order, s.name)
	return s.err
}

func TestRunnerStopsInReverseOrderAndSkipsNil(t *testing.T) {
	var order []string
	first := &orderedStopService{name: "http", order: &order}
	second := &orderedStopService{name: "worker", order: &order, err: errors.New("drain timeout")}
	runner := NewRunner(first, nil, second)
	if len(runner.services) != 2 {
		t.Fatalf("nil service should be dropped, got %d", len(runner.services))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := runner.Run(ctx, time.Second, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded, got %v", err)
	}
	if len(order) != 2 || order[0] != "worker" || order[1] != "http" {
		t.Fatalf("unexpected stop order %v", order)
	}
}

func TestBuildRunnerRejectsUnknownMode(t *testing.T) {
	cfg := &config.Config{}
	if _, _, err := BuildRunner(cfg, "scheduler", nil); err == nil {
		t.Fatalf("unknown mode should fail before wiring")
	}
	if err := validateMode(normalizeOptions(Options{Mode: " API "}).Mode); err != nil {
		t.Fatalf("normalized mode should be valid: %v", err)
	}
}

func TestHTTPServiceReportsListenFailure(t *testing.T) {
	svc := NewHTTPService("256.0.0.1:-1", nil)
	if err := svc.Start(context.Background()); err == nil {
		t.Fatalf("invalid address should fail to listen")
	}
}
