package digest

import "testing"

func TestSum(t *testing.T) {
	if got := Sum("admin"); got != "21232f297a57a5a743894a0e4a801fc3" {
		t.Fatalf("unexpected digest for admin: %s", got)
	}
	if Sum("a") == Sum("b") {
		t.Fatalf("expected distinct inputs to produce distinct digests")
	}
	if Sum("schedule") != Sum("schedule") {
		t.Fatalf("expected digest to be deterministic")
	}
	if len(Sum("")) != 32 {
		t.Fatalf("expected fixed 32-char output, got %d", len(Sum("")))
	}
}
