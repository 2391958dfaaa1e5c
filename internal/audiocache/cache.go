// Package audiocache is a content-addressed store for synthesized speech.
// Identical (text, voice, rate) inputs map to one immutable MP3 on disk, so
// repeated phrasings are never re-synthesized.
package audiocache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/marsdhp/sme-interview/backend/internal/model/voice"
	"github.com/marsdhp/sme-interview/backend/internal/provider"
)

// Entry describes one cached audio payload.
type Entry struct {
	Fingerprint string
	Path        string
	ContentType string
	Size        int64
	CreatedAt   time.Time
}

// URL is the public reference handed back to clients.
func (e Entry) URL() string {
	return "/audio/" + e.Fingerprint + ".mp3"
}

// Cache is the process-wide audio store shared by all sessions. Entries are
// write-once: created on first miss, then only read.
type Cache struct {
	dir   string
	synth provider.Synthesizer
	index *gocache.Cache

	mu       sync.Mutex
	inflight map[string]*sync.Mutex
}

// New opens the cache rooted at dir and indexes any entries already on disk.
// synth may be nil, in which case every miss fails and callers degrade to
// text-only responses.
func New(dir string, synth provider.Synthesizer) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio cache dir: %w", err)
	}

	c := &Cache{
		dir:      dir,
		synth:    synth,
		index:    gocache.New(gocache.NoExpiration, 0),
		inflight: make(map[string]*sync.Mutex),
	}

	if err := c.reindex(); err != nil {
		return nil, err
	}
	return c, nil
}

// reindex rebuilds the in-memory index from files already in the cache
// directory, so a restart does not lose previously synthesized audio.
func (c *Cache) reindex() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("scan audio cache dir: %w", err)
	}

	count := 0
	for _, de := range entries {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, ".mp3") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		fp := strings.TrimSuffix(name, ".mp3")
		c.index.Set(fp, Entry{
			Fingerprint: fp,
			Path:        filepath.Join(c.dir, name),
			ContentType: "audio/mpeg",
			Size:        info.Size(),
			CreatedAt:   info.ModTime().UTC(),
		}, gocache.NoExpiration)
		count++
	}

	if count > 0 {
		logrus.WithField("entries", count).Info("audio cache reindexed")
	}
	return nil
}

// Fingerprint derives the deterministic cache key for a synthesis request.
// The rate is formatted with fixed precision so equal rates always collapse
// to the same key regardless of how they were computed.
func Fingerprint(text, voiceName string, rate float64) string {
	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write([]byte(voiceName))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatFloat(rate, 'f', 4, 64)))
	return hex.EncodeToString(h.Sum(nil))
}

// Get looks up an entry without synthesizing.
func (c *Cache) Get(fingerprint string) (Entry, bool) {
	v, ok := c.index.Get(fingerprint)
	if !ok {
		return Entry{}, false
	}
	return v.(Entry), true
}

// GetOrSynthesize returns the cached audio for the request, synthesizing and
// storing it on first use. The second return value reports a cache hit.
// Concurrent misses on the same fingerprint are collapsed into a single
// synthesis call.
func (c *Cache) GetOrSynthesize(ctx context.Context, text string, preset voice.Preset, rate float64) (Entry, bool, error) {
	effective := preset.EffectiveRate(rate)
	fp := Fingerprint(text, preset.Name, effective)

	if entry, ok := c.Get(fp); ok {
		return entry, true, nil
	}

	lock := c.keyLock(fp)
	lock.Lock()
	defer lock.Unlock()

	// Another caller may have completed the miss while we waited.
	if entry, ok := c.Get(fp); ok {
		return entry, true, nil
	}

	if c.synth == nil {
		return Entry{}, false, fmt.Errorf("no synthesizer configured")
	}

	audio, err := c.synth.Synthesize(ctx, text, preset.Name, effective)
	if err != nil {
		return Entry{}, false, fmt.Errorf("synthesize: %w", err)
	}

	entry, err := c.write(fp, audio)
	if err != nil {
		return Entry{}, false, err
	}
	return entry, false, nil
}

// write persists audio bytes under the fingerprint. The temp-file rename
// keeps partially written files from ever being visible under a valid key.
func (c *Cache) write(fingerprint string, audio provider.Audio) (Entry, error) {
	final := filepath.Join(c.dir, fingerprint+".mp3")

	tmp, err := os.CreateTemp(c.dir, "synth-*.tmp")
	if err != nil {
		return Entry{}, fmt.Errorf("create temp audio file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(audio.Data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return Entry{}, fmt.Errorf("write audio file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return Entry{}, fmt.Errorf("close audio file: %w", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return Entry{}, fmt.Errorf("publish audio file: %w", err)
	}

	entry := Entry{
		Fingerprint: fingerprint,
		Path:        final,
		ContentType: audio.ContentType,
		Size:        int64(len(audio.Data)),
		CreatedAt:   time.Now().UTC(),
	}
	c.index.Set(fingerprint, entry, gocache.NoExpiration)
	return entry, nil
}

func (c *Cache) keyLock(fingerprint string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.inflight[fingerprint]
	if !ok {
		lock = &sync.Mutex{}
		c.inflight[fingerprint] = lock
	}
	return lock
}

// Len reports the number of indexed entries.
func (c *Cache) Len() int {
	return c.index.ItemCount()
}
