package common

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyThroughWrapping(t *testing.T) {
	errStale := NewError(ClassExternalData, "stale price")
	errSafe := NewError(ClassPrecondition, "vault safe")

	cases := []struct {
		name      string
		err       error
		class     Class
		retryable bool
	}{
		{name: "direct", err: errStale, class: ClassExternalData, retryable: true},
		{name: "wrapped", err: fmt.Errorf("refresh: %w", errStale), class: ClassExternalData, retryable: true},
		{name: "precondition", err: fmt.Errorf("liquidate: %w", errSafe), class: ClassPrecondition},
		{name: "plain", err: errors.New("boom"), class: ClassUnknown},
		{name: "nil", err: nil, class: ClassUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.class {
				t.Fatalf("expected class %s, got %s", tc.class, got)
			}
			if got := Retryable(tc.err); got != tc.retryable {
				t.Fatalf("expected retryable %v, got %v", tc.retryable, got)
			}
		})
	}
	if !errors.Is(fmt.Errorf("x: %w", errSafe), errSafe) {
		t.Fatalf("sentinel identity lost through wrapping")
	}
}

func TestGuard(t *testing.T) {
	if err := Guard(nil, "controller"); err != nil {
		t.Fatalf("nil view must not block: %v", err)
	}
	pauses := NewPauses(map[string]bool{"Controller": true})
	if err := Guard(pauses, "controller"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected paused, got %v", err)
	}
	pauses.Set("controller", false)
	if err := Guard(pauses, "controller"); err != nil {
		t.Fatalf("expected unpaused, got %v", err)
	}
	if Classify(ErrModulePaused) != ClassPrecondition {
		t.Fatalf("pause must be a precondition failure")
	}
}
