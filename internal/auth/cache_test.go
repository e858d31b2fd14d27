package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// countingValidator accepts one token and counts calls.
type countingValidator struct {
	mu    sync.Mutex
	calls int
	good  string
}

func (v *countingValidator) Validate(_ context.Context, token string) (*Identity, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	if token != v.good {
		return nil, ErrTokenInvalid
	}
	return &Identity{Subject: "usr-1"}, nil
}

func (v *countingValidator) count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

func TestCachingValidatorMemoisesSuccess(t *testing.T) {
	next := &countingValidator{good: "good"}
	c := NewCachingValidator(next, time.Minute)

	for i := 0; i < 3; i++ {
		id, err := c.Validate(context.Background(), "good")
		if err != nil || id.Subject != "usr-1" {
			t.Fatalf("Validate() = %+v, %v", id, err)
		}
	}
	if next.count() != 1 {
		t.Errorf("underlying calls = %d, want 1", next.count())
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestCachingValidatorDoesNotCacheFailure(t *testing.T) {
	next := &countingValidator{good: "good"}
	c := NewCachingValidator(next, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := c.Validate(context.Background(), "bad"); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("Validate() error = %v, want ErrTokenInvalid", err)
		}
	}
	if next.count() != 2 {
		t.Errorf("underlying calls = %d, want 2", next.count())
	}
	if _, err := c.Validate(context.Background(), ""); !errors.Is(err, ErrTokenEmpty) {
		t.Errorf("Validate(empty) error = %v, want ErrTokenEmpty", err)
	}
}

func TestCachingValidatorExpires(t *testing.T) {
	next := &countingValidator{good: "good"}
	c := NewCachingValidator(next, 20*time.Millisecond)

	if _, err := c.Validate(context.Background(), "good"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(40 * time.Millisecond)
	if _, err := c.Validate(context.Background(), "good"); err != nil {
		t.Fatal(err)
	}
	if next.count() != 2 {
		t.Errorf("underlying calls = %d, want 2 after expiry", next.count())
	}
}
