package reference

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestGenerate_Format(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 6, 30, 23, 30, 0, 0, time.UTC)
	g := NewGeneratorAt(func() time.Time { return at })

	ref := g.Generate()

	if len(ref) != Len {
		t.Fatalf("len = %d, want %d", len(ref), Len)
	}

	// 23:30 UTC is 00:30 next day in Lagos.
	if !strings.HasPrefix(ref, "202507010030") {
		t.Fatalf("unexpected stamp in %q", ref)
	}

	if ref != strings.ToLower(ref) {
		t.Fatalf("reference must be lowercase: %q", ref)
	}

	if !Valid(ref) {
		t.Fatalf("generated reference not valid: %q", ref)
	}
}

func TestGenerate_MonotonicWithinMillisecond(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	g := NewGeneratorAt(func() time.Time { return at })

	prev := g.Generate()
	for range 100 {
		next := g.Generate()
		if next <= prev {
			t.Fatalf("not increasing: %q then %q", prev, next)
		}
		prev = next
	}
}

func TestGenerate_UniqueAcrossGoroutines(t *testing.T) {
	t.Parallel()

	const (
		workers = 8
		each    = 500
	)

	var (
		mu   sync.Mutex
		seen = make(map[string]struct{}, workers*each)
		wg   sync.WaitGroup
	)

	for range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			local := make([]string, 0, each)
			for range each {
				local = append(local, Generate())
			}

			mu.Lock()
			defer mu.Unlock()

			for _, r := range local {
				seen[r] = struct{}{}
			}
		}()
	}

	wg.Wait()

	if len(seen) != workers*each {
		t.Fatalf("got %d unique references, want %d", len(seen), workers*each)
	}
}

func TestValid(t *testing.T) {
	t.Parallel()

	good := NewGenerator().Generate()

	tests := []struct {
		name string
		ref  string
		want bool
	}{
		{name: "generated", ref: good, want: true},
		{name: "empty", ref: "", want: false},
		{name: "too_short", ref: good[:10], want: false},
		{name: "bad_stamp", ref: "2025133112" + "00" + good[stampLen:], want: false},
		{name: "bad_ulid_char", ref: good[:stampLen] + "u" + good[stampLen+1:], want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := Valid(tt.ref); got != tt.want {
				t.Fatalf("Valid(%q) = %v, want %v", tt.ref, got, tt.want)
			}
		})
	}
}
