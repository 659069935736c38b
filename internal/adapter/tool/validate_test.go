package tool

import (
	"errors"
	"testing"
)

func TestRequireField(t *testing.T) {
	if err := RequireField("name", "value"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := RequireField("name", ""); err == nil {
		t.Error("expected error for empty value")
	}
}

func TestValidatePositive(t *testing.T) {
	if err := ValidatePositive("count", 1); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	for _, v := range []int{0, -5} {
		if err := ValidatePositive("count", v); err == nil {
			t.Errorf("expected error for %d", v)
		}
	}
}

func TestValidateEnum(t *testing.T) {
	if err := ValidateEnum("mode", "fast", "fast", "slow"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateEnum("mode", "", "fast", "slow"); err != nil {
		t.Errorf("empty value should be allowed: %v", err)
	}
	if err := ValidateEnum("mode", "medium", "fast", "slow"); err == nil {
		t.Error("expected error for value outside the allowed set")
	}
}

func TestValidateAll(t *testing.T) {
	if err := ValidateAll(nil, nil); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	sentinel := errors.New("boom")
	if err := ValidateAll(nil, sentinel, errors.New("later")); !errors.Is(err, sentinel) {
		t.Errorf("expected first error, got %v", err)
	}
}
