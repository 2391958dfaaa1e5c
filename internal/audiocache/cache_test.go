package audiocache

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/marsdhp/sme-interview/backend/internal/model/voice"
	"github.com/marsdhp/sme-interview/backend/internal/provider"
)

type countingSynth struct {
	calls int32
	fail  bool
}

func (s *countingSynth) Synthesize(_ context.Context, text, _ string, _ float64) (provider.Audio, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.fail {
		return provider.Audio{}, errors.New("backend down")
	}
	return provider.Audio{Data: []byte("mp3:" + text), ContentType: "audio/mpeg"}, nil
}

func TestFingerprintDeterministic(t *testing.T) {
	a := Fingerprint("hello", "en-US-Neural2-F", 0.95)
	b := Fingerprint("hello", "en-US-Neural2-F", 0.95)
	if a != b {
		t.Errorf("expected identical fingerprints, got %s and %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("expected 64-char hex digest, got %d chars", len(a))
	}

	if Fingerprint("hello", "en-US-Neural2-F", 1.0) == a {
		t.Error("expected rate to affect the fingerprint")
	}
	if Fingerprint("hello", "en-US-Neural2-D", 0.95) == a {
		t.Error("expected voice to affect the fingerprint")
	}
	if Fingerprint("hello there", "en-US-Neural2-F", 0.95) == a {
		t.Error("expected text to affect the fingerprint")
	}
}

func TestGetOrSynthesizeMissThenHit(t *testing.T) {
	synth := &countingSynth{}
	cache, err := New(t.TempDir(), synth)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	preset := voice.Resolve("standard_female")

	entry, hit, err := cache.GetOrSynthesize(context.Background(), "welcome", preset, 0.95)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if hit {
		t.Error("expected a miss on first call")
	}
	if entry.Size == 0 {
		t.Error("expected non-empty audio")
	}
	if _, err := os.Stat(entry.Path); err != nil {
		t.Errorf("expected audio file on disk: %v", err)
	}

	entry2, hit, err := cache.GetOrSynthesize(context.Background(), "welcome", preset, 0.95)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if !hit {
		t.Error("expected a hit on second call")
	}
	if entry2.Fingerprint != entry.Fingerprint {
		t.Errorf("expected same entry, got %s and %s", entry.Fingerprint, entry2.Fingerprint)
	}
	if got := atomic.LoadInt32(&synth.calls); got != 1 {
		t.Errorf("expected one synthesis call, got %d", got)
	}
}

func TestRateNormalizationForFixedRateVoices(t *testing.T) {
	synth := &countingSynth{}
	cache, err := New(t.TempDir(), synth)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	// Premium presets ignore rate, so different requested rates must share
	// one cache entry.
	preset := voice.Resolve("premium_female")

	if _, _, err := cache.GetOrSynthesize(context.Background(), "hello", preset, 0.8); err != nil {
		t.Fatalf("first call: %v", err)
	}
	_, hit, err := cache.GetOrSynthesize(context.Background(), "hello", preset, 1.2)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if !hit {
		t.Error("expected hit for rate-insensitive preset")
	}
}

func TestFailedSynthesisLeavesNoEntry(t *testing.T) {
	synth := &countingSynth{fail: true}
	cache, err := New(t.TempDir(), synth)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	preset := voice.Resolve("budget_male")

	if _, _, err := cache.GetOrSynthesize(context.Background(), "oops", preset, 1.0); err == nil {
		t.Fatal("expected synthesis error")
	}
	if cache.Len() != 0 {
		t.Errorf("expected empty cache after failure, got %d entries", cache.Len())
	}

	// Recovery works once the backend is healthy again.
	synth.fail = false
	_, hit, err := cache.GetOrSynthesize(context.Background(), "oops", preset, 1.0)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if hit {
		t.Error("expected miss on retry after failure")
	}
}

func TestConcurrentMissesSynthesizeOnce(t *testing.T) {
	synth := &countingSynth{}
	cache, err := New(t.TempDir(), synth)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	preset := voice.Resolve("standard_male")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := cache.GetOrSynthesize(context.Background(), "race me", preset, 0.95); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent call failed: %v", err)
	}

	if got := atomic.LoadInt32(&synth.calls); got != 1 {
		t.Errorf("expected single synthesis under concurrency, got %d", got)
	}
}

func TestReindexRestoresEntries(t *testing.T) {
	dir := t.TempDir()
	synth := &countingSynth{}
	cache, err := New(dir, synth)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	preset := voice.Resolve("standard_female")

	entry, _, err := cache.GetOrSynthesize(context.Background(), "persist me", preset, 0.95)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}

	reopened, err := New(dir, synth)
	if err != nil {
		t.Fatalf("reopen cache: %v", err)
	}
	got, ok := reopened.Get(entry.Fingerprint)
	if !ok {
		t.Fatal("expected entry after reindex")
	}
	if got.Path != entry.Path {
		t.Errorf("expected same path, got %q and %q", entry.Path, got.Path)
	}

	_, hit, err := reopened.GetOrSynthesize(context.Background(), "persist me", preset, 0.95)
	if err != nil {
		t.Fatalf("lookup after reindex: %v", err)
	}
	if !hit {
		t.Error("expected hit from reindexed entry")
	}
}

func TestNilSynthesizerFailsMisses(t *testing.T) {
	cache, err := New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	if _, _, err := cache.GetOrSynthesize(context.Background(), "anything", voice.Resolve(""), 1.0); err == nil {
		t.Fatal("expected error with no synthesizer")
	}
}
