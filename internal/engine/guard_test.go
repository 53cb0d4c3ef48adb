package engine

import (
	"errors"
	"testing"
)

func TestGuardAcquireRelease(t *testing.T) {
	var g guard

	if err := g.acquire(); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := g.acquire(); !errors.Is(err, ErrReentrantCall) {
		t.Fatalf("second acquire: expected ErrReentrantCall, got %v", err)
	}

	g.release()
	if err := g.acquire(); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}
