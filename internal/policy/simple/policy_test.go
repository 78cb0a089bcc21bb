package simple

import "testing"

func TestPolicyAllowsEverything(t *testing.T) {
	t.Parallel()

	p := New()
	for _, key := range []string{"articles", "analytics", ""} {
		if !p.Allow(key) {
			t.Fatalf("expected Allow(%q) to return true", key)
		}
	}
}
