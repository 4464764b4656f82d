package anomaly

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestDetector(t *testing.T, lookback time.Duration) (*miniredis.Miniredis, *Detector) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, New(client, "ac", lookback)
}

func TestFirstObservationIsNew(t *testing.T) {
	mr, det := newTestDetector(t, 30*24*time.Hour)
	defer mr.Close()

	ctx := context.Background()

	res, err := det.Observe(ctx, "u1", "203.0.113.10", "fp-1")
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	if !res.NewIP || !res.NewDevice {
		t.Fatalf("first observation: got %+v, want both new", res)
	}
}

func TestRepeatObservationIsQuiet(t *testing.T) {
	mr, det := newTestDetector(t, 30*24*time.Hour)
	defer mr.Close()

	ctx := context.Background()

	if _, err := det.Observe(ctx, "u1", "203.0.113.10", "fp-1"); err != nil {
		t.Fatalf("Observe failed: %v", err)
	}

	res, err := det.Observe(ctx, "u1", "203.0.113.10", "fp-1")
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	if res.NewIP || res.NewDevice {
		t.Fatalf("repeat observation: got %+v, want neither new", res)
	}
}

func TestDimensionsAreIndependent(t *testing.T) {
	mr, det := newTestDetector(t, 30*24*time.Hour)
	defer mr.Close()

	ctx := context.Background()

	if _, err := det.Observe(ctx, "u1", "203.0.113.10", "fp-1"); err != nil {
		t.Fatalf("Observe failed: %v", err)
	}

	res, err := det.Observe(ctx, "u1", "203.0.113.99", "fp-1")
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	if !res.NewIP {
		t.Fatal("unseen IP not flagged")
	}
	if res.NewDevice {
		t.Fatal("known fingerprint flagged")
	}
}

func TestIdentitiesDoNotShareHistory(t *testing.T) {
	mr, det := newTestDetector(t, 30*24*time.Hour)
	defer mr.Close()

	ctx := context.Background()

	if _, err := det.Observe(ctx, "u1", "203.0.113.10", ""); err != nil {
		t.Fatalf("Observe failed: %v", err)
	}

	res, err := det.Observe(ctx, "u2", "203.0.113.10", "")
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	if !res.NewIP {
		t.Fatal("u1's history leaked into u2's detection")
	}
}

func TestEmptyAttributesAreSkipped(t *testing.T) {
	mr, det := newTestDetector(t, 30*24*time.Hour)
	defer mr.Close()

	res, err := det.Observe(context.Background(), "u1", "", "")
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	if res.NewIP || res.NewDevice {
		t.Fatalf("empty attributes flagged: %+v", res)
	}
}

func TestDetectorSurfacesStoreFaults(t *testing.T) {
	mr, det := newTestDetector(t, time.Hour)
	mr.Close()

	if _, err := det.Observe(context.Background(), "u1", "203.0.113.10", ""); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
