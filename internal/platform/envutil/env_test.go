package envutil

import (
	"testing"
	"time"
)

func TestGetEnvUsesValueWhenSet(t *testing.T) {
	t.Setenv("RESERVECORE_TEST_STR", "hello")
	if got := GetEnv("RESERVECORE_TEST_STR", "default", nil); got != "hello" {
		t.Fatalf("expected hello, got %q", got)
	}
}

func TestGetEnvFallsBackToDefault(t *testing.T) {
	if got := GetEnv("RESERVECORE_TEST_STR_UNSET", "default", nil); got != "default" {
		t.Fatalf("expected default, got %q", got)
	}
}

func TestGetEnvAsIntParsesValidInt(t *testing.T) {
	t.Setenv("RESERVECORE_TEST_INT", "42")
	if got := GetEnvAsInt("RESERVECORE_TEST_INT", 7, nil); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
}

func TestGetEnvAsIntFallsBackOnBadValue(t *testing.T) {
	t.Setenv("RESERVECORE_TEST_INT_BAD", "not-a-number")
	if got := GetEnvAsInt("RESERVECORE_TEST_INT_BAD", 7, nil); got != 7 {
		t.Fatalf("expected fallback 7, got %d", got)
	}
}

func TestGetEnvAsBoolParsesValidBool(t *testing.T) {
	t.Setenv("RESERVECORE_TEST_BOOL", "true")
	if got := GetEnvAsBool("RESERVECORE_TEST_BOOL", false, nil); got != true {
		t.Fatalf("expected true, got %v", got)
	}
}

func TestGetEnvAsBoolFallsBackOnBadValue(t *testing.T) {
	t.Setenv("RESERVECORE_TEST_BOOL_BAD", "not-a-bool")
	if got := GetEnvAsBool("RESERVECORE_TEST_BOOL_BAD", true, nil); got != true {
		t.Fatalf("expected fallback true, got %v", got)
	}
}

func TestGetEnvAsDurationParsesValidDuration(t *testing.T) {
	t.Setenv("RESERVECORE_TEST_DURATION", "5s")
	if got := GetEnvAsDuration("RESERVECORE_TEST_DURATION", time.Second, nil); got != 5*time.Second {
		t.Fatalf("expected 5s, got %v", got)
	}
}

func TestGetEnvAsDurationFallsBackOnBadValue(t *testing.T) {
	t.Setenv("RESERVECORE_TEST_DURATION_BAD", "not-a-duration")
	if got := GetEnvAsDuration("RESERVECORE_TEST_DURATION_BAD", 3*time.Second, nil); got != 3*time.Second {
		t.Fatalf("expected fallback 3s, got %v", got)
	}
}
