package ridefile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

var (
	ErrUnknownFormat    = errors.New("unknown ride file format")
	ErrDuplicateFormat  = errors.New("ride file format already registered")
	ErrInvalidFormatTag = errors.New("invalid ride file format tag")
)

// Reader decodes one ride file format. Warnings are non-fatal diagnostics.
// On error the returned ride is nil.
type Reader interface {
	OpenRide(r io.Reader) (*Ride, []string, error)
}

// Format describes a registered reader.
type Format struct {
	Tag         string `json:"tag"`
	Description string `json:"description"`
}

type registered struct {
	description string
	reader      Reader
}

// Registry maps file-format tags (file extensions without the dot) to readers.
type Registry struct {
	mu      sync.RWMutex
	readers map[string]registered
}

func NewRegistry() *Registry {
	return &Registry{readers: make(map[string]registered)}
}

// Register adds a reader under tag. Tags are case-insensitive.
func (r *Registry) Register(tag, description string, reader Reader) error {
	key := normalizeTag(tag)
	if key == "" || strings.ContainsAny(key, "./\\ ") {
		return fmt.Errorf("%w: %q", ErrInvalidFormatTag, tag)
	}
	if reader == nil {
		return fmt.Errorf("register %q: nil reader", key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.readers == nil {
		r.readers = make(map[string]registered)
	}
	if _, exists := r.readers[key]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateFormat, key)
	}
	r.readers[key] = registered{description: description, reader: reader}
	return nil
}

func (r *Registry) Lookup(tag string) (Reader, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.readers[normalizeTag(tag)]
	if !ok {
		return nil, false
	}
	return entry.reader, true
}

// Formats lists the registered formats sorted by tag.
func (r *Registry) Formats() []Format {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Format, 0, len(r.readers))
	for tag, entry := range r.readers {
		out = append(out, Format{Tag: tag, Description: entry.description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}

// Decode reads a ride with the reader registered under tag.
func (r *Registry) Decode(tag string, in io.Reader) (*Ride, []string, error) {
	reader, ok := r.Lookup(tag)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownFormat, tag)
	}
	return reader.OpenRide(in)
}

// Open picks the reader from the file extension and decodes path.
func (r *Registry) Open(path string) (*Ride, []string, error) {
	tag := strings.TrimPrefix(filepath.Ext(path), ".")
	reader, ok := r.Lookup(tag)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q (%s)", ErrUnknownFormat, tag, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open ride file: %w", err)
	}
	defer f.Close()

	ride, warnings, err := reader.OpenRide(f)
	if err != nil {
		return nil, warnings, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return ride, warnings, nil
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}
