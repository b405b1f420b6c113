package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/jgard/framesheet/internal/extract"
	"github.com/jgard/framesheet/pkg/util"
)

// Binary entry format: magic, version, record count, then length-prefixed
// (timestamp micros, jpeg bytes) records.
var entryMagic = [4]byte{'F', 'S', 'C', '1'}

const entryVersion uint16 = 1

// storeQuality is the jpeg quality for cached frame bytes.
const storeQuality = 90

var errCorruptEntry = errors.New("corrupt cache entry")

// Cache persists selected frames keyed by a fingerprint of the source file
// and requested frame count. Unbounded by design; housekeeping belongs to
// the caller.
type Cache struct {
	dir    string
	logger zerolog.Logger
}

// New creates a frame cache rooted at dir.
func New(logger zerolog.Logger, dir string) (*Cache, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return &Cache{
		dir:    dir,
		logger: logger.With().Str("component", "cache").Logger(),
	}, nil
}

// Fingerprint derives the cache key for (path, frameCount). It folds in the
// source modification time when available; when stat fails it degrades to
// path+count, trading cache precision for availability.
func Fingerprint(path string, frameCount int) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	h := sha256.New()
	fmt.Fprintf(h, "%s|%d", abs, frameCount)
	if fi, err := os.Stat(abs); err == nil {
		fmt.Fprintf(h, "|%d", fi.ModTime().UnixNano())
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Lookup returns the cached frames for (path, frameCount), or ok=false on a
// miss. Corrupt or partially written entries are treated as misses.
func (c *Cache) Lookup(path string, frameCount int) ([]extract.Frame, bool) {
	entryPath := c.entryPath(Fingerprint(path, frameCount))

	data, err := os.ReadFile(entryPath)
	if err != nil {
		return nil, false
	}

	frames, err := decodeEntry(data)
	if err != nil {
		c.logger.Debug().
			Err(err).
			Str("entry", entryPath).
			Msg("discarding unreadable cache entry")
		return nil, false
	}

	c.logger.Debug().
		Str("video", path).
		Int("frames", len(frames)).
		Msg("cache hit")

	return frames, true
}

// Store persists frames for (path, frameCount) in the background. It never
// blocks the caller and its failures are logged, not surfaced.
func (c *Cache) Store(path string, frameCount int, frames []extract.Frame) {
	fingerprint := Fingerprint(path, frameCount)

	go func() {
		if err := c.write(fingerprint, frames); err != nil {
			c.logger.Warn().
				Err(err).
				Str("video", path).
				Msg("cache store failed")
			return
		}
		c.logger.Debug().
			Str("video", path).
			Int("frames", len(frames)).
			Msg("cache entry written")
	}()
}

// Clear removes every entry in the cache directory.
func (c *Cache) Clear() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(c.dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// write encodes and atomically publishes one entry: a reader either sees the
// complete file or no file.
func (c *Cache) write(fingerprint string, frames []extract.Frame) error {
	data, err := encodeEntry(frames)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(c.dir, fingerprint+".tmp-")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		util.CleanupFiles(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		util.CleanupFiles(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, c.entryPath(fingerprint)); err != nil {
		util.CleanupFiles(tmpPath)
		return err
	}
	return nil
}

func (c *Cache) entryPath(fingerprint string) string {
	return filepath.Join(c.dir, fingerprint+".fsc")
}

func encodeEntry(frames []extract.Frame) ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.Write(entryMagic[:])
	binary.Write(buf, binary.LittleEndian, entryVersion)
	binary.Write(buf, binary.LittleEndian, uint32(len(frames)))

	for _, frame := range frames {
		img := &bytes.Buffer{}
		if err := jpeg.Encode(img, frame.Image, &jpeg.Options{Quality: storeQuality}); err != nil {
			return nil, fmt.Errorf("encoding cached frame: %w", err)
		}

		binary.Write(buf, binary.LittleEndian, frame.Timestamp.Microseconds())
		binary.Write(buf, binary.LittleEndian, uint32(img.Len()))
		buf.Write(img.Bytes())
	}

	return buf.Bytes(), nil
}

func decodeEntry(data []byte) ([]extract.Frame, error) {
	r := bytes.NewReader(data)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil || magic != entryMagic {
		return nil, errCorruptEntry
	}

	var version uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil || version != entryVersion {
		return nil, errCorruptEntry
	}

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, errCorruptEntry
	}

	frames := make([]extract.Frame, 0, count)
	for i := uint32(0); i < count; i++ {
		var micros int64
		if err := binary.Read(r, binary.LittleEndian, &micros); err != nil {
			return nil, errCorruptEntry
		}

		var length uint32
		if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
			return nil, errCorruptEntry
		}
		// The length field is untrusted: never allocate more than remains.
		if int64(length) > int64(r.Len()) {
			return nil, errCorruptEntry
		}

		raw := make([]byte, length)
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, errCorruptEntry
		}

		img, _, err := image.Decode(bytes.NewReader(raw))
		if err != nil {
			return nil, errCorruptEntry
		}

		frames = append(frames, extract.Frame{
			Image:     img,
			Timestamp: time.Duration(micros) * time.Microsecond,
		})
	}

	return frames, nil
}
