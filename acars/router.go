package acars

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Scheme selects the classification attribute messages are split by.
type Scheme int

const (
	ByLabel Scheme = iota
	ByTail
	ByType
	ByKeyword
)

func (s Scheme) String() string {
	switch s {
	case ByLabel:
		return "label"
	case ByTail:
		return "tail"
	case ByType:
		return "type"
	case ByKeyword:
		return "keyword"
	}
	return "unknown"
}

// ParseScheme maps a settings value to a Scheme.
func ParseScheme(s string) (Scheme, error) {
	switch strings.ToLower(s) {
	case "", "label":
		return ByLabel, nil
	case "tail":
		return ByTail, nil
	case "type":
		return ByType, nil
	case "keyword":
		return ByKeyword, nil
	}
	return ByLabel, fmt.Errorf("unknown split scheme %q", s)
}

type bucket struct {
	f          *os.File
	path       string
	count      int
	hasContent bool
}

// Router appends messages to one file per classification bucket under
// Dir, creating each bucket's file handle lazily on first use and
// keeping it open. Messages within a file are separated by a blank
// line. Safe for concurrent use.
type Router struct {
	Dir     string
	Scheme  Scheme
	Keyword string // bucket keyword for ByKeyword

	// Append preserves existing bucket files and separates new
	// content from old; otherwise each bucket is truncated when first
	// opened.
	Append bool

	// FlatNames selects the live splitter's plain acars_<label>.txt
	// naming instead of the scheme-prefixed names. Only meaningful
	// with ByLabel.
	FlatNames bool

	mu      sync.Mutex
	buckets map[string]*bucket
}

// BucketInfo describes one output bucket of a Router.
type BucketInfo struct {
	Key   string `json:"Key"`
	Path  string `json:"Path"`
	Count int    `json:"Count"`
}

func (r *Router) fileName(key string) string {
	if key == "" {
		switch {
		case r.Scheme == ByKeyword:
			return fmt.Sprintf("acars_not_containing_%s.txt", r.Keyword)
		case r.FlatNames:
			return "acars_unlabeled.txt"
		default:
			return "acars_unclassified.txt"
		}
	}
	if r.FlatNames {
		return fmt.Sprintf("acars_%s.txt", key)
	}
	switch r.Scheme {
	case ByTail:
		return fmt.Sprintf("acars_tail_%s.txt", key)
	case ByType:
		return fmt.Sprintf("acars_type_%s.txt", key)
	case ByKeyword:
		return fmt.Sprintf("acars_containing_%s.txt", key)
	}
	return fmt.Sprintf("acars_label_%s.txt", key)
}

func (r *Router) bucket(key string) (*bucket, error) {
	if b, ok := r.buckets[key]; ok {
		return b, nil
	}

	// Both the key and, in keyword mode, the keyword itself end up in
	// the file name. A separator in either would move the bucket out
	// of Dir.
	name := r.fileName(key)
	if strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("invalid bucket file name %q", name)
	}
	path := filepath.Join(r.Dir, name)
	flags := os.O_CREATE | os.O_WRONLY
	if r.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, err
	}

	b := &bucket{f: f, path: path}
	if r.Append {
		if fi, err := f.Stat(); err == nil && fi.Size() > 0 {
			b.hasContent = true
		}
	}
	if r.buckets == nil {
		r.buckets = make(map[string]*bucket)
	}
	r.buckets[key] = b
	return b, nil
}

// Route appends a message to the bucket for key. An empty key routes
// to the unclassified bucket.
func (r *Router) Route(key, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, err := r.bucket(key)
	if err != nil {
		return err
	}
	if b.hasContent {
		if _, err := b.f.WriteString("\n\n"); err != nil {
			return err
		}
	}
	if _, err := b.f.WriteString(message); err != nil {
		return err
	}
	b.hasContent = true
	b.count++
	return nil
}

// Buckets returns the buckets routed to so far, sorted by path.
func (r *Router) Buckets() []BucketInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	ret := make([]BucketInfo, 0, len(r.buckets))
	for key, b := range r.buckets {
		ret = append(ret, BucketInfo{Key: key, Path: b.path, Count: b.count})
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Path < ret[j].Path })
	return ret
}

// Close closes all bucket files and forgets their counts.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for _, b := range r.buckets {
		if err := b.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.buckets = nil
	return firstErr
}
