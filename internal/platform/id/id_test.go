package id

import "testing"

func TestNewIDLength(t *testing.T) {
	generated, err := NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	if len(generated) != 26 {
		t.Fatalf("len = %d, want 26", len(generated))
	}
}

func TestNewIDLowercaseNoPadding(t *testing.T) {
	generated, err := NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	for _, r := range generated {
		if r == '=' {
			t.Fatal("id contains padding")
		}
		if r >= 'A' && r <= 'Z' {
			t.Fatalf("id contains uppercase rune %q", r)
		}
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		generated, err := NewID()
		if err != nil {
			t.Fatalf("new id: %v", err)
		}
		if seen[generated] {
			t.Fatalf("duplicate id %q", generated)
		}
		seen[generated] = true
	}
}
