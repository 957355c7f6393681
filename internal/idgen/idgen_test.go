package idgen

import (
	"regexp"
	"strings"
	"testing"
)

func TestSession_Shape(t *testing.T) {
	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(SessionPrefix) + `[` + alphabet + `]{12}$`)
	for i := 0; i < 100; i++ {
		id, err := Session()
		if err != nil {
			t.Fatalf("Session() error on iteration %d: %v", i, err)
		}
		if !pattern.MatchString(id) {
			t.Fatalf("Session() = %q, does not match %s", id, pattern)
		}
	}
}

func TestSession_NoLookAlikes(t *testing.T) {
	for i := 0; i < 1000; i++ {
		id := strings.TrimPrefix(MustSession(), SessionPrefix)
		if strings.ContainsAny(id, "01lIoO") {
			t.Fatalf("session id %q contains a look-alike character", id)
		}
	}
}

func TestSession_Uniqueness(t *testing.T) {
	const count = 10_000
	seen := make(map[string]struct{}, count)
	for i := 0; i < count; i++ {
		id := MustSession()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id after %d generations: %q", i, id)
		}
		seen[id] = struct{}{}
	}
}

func TestWithPrefix(t *testing.T) {
	id, err := WithPrefix("probe-")
	if err != nil {
		t.Fatalf("WithPrefix error: %v", err)
	}
	if !strings.HasPrefix(id, "probe-") {
		t.Errorf("WithPrefix = %q, want prefix probe-", id)
	}
	if got, want := len(id), len("probe-")+Length; got != want {
		t.Errorf("len = %d, want %d", got, want)
	}
}
