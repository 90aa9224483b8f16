// Package keygen allocates collision-free random short keys and keeps a
// bidirectional key↔URL mapping of every key it handed out.
package keygen

import (
	"fmt"
	"sync"

	"github.com/vadimbarashkov/short-links/internal/entity"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// Alphabet is the case-sensitive set of symbols a generated key is drawn from.
	Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	DefaultLength     = 8
	DefaultMaxRetries = 10
)

type Option func(*Generator)

func WithLength(n int) Option {
	return func(g *Generator) {
		g.length = n
	}
}

// WithMaxRetries sets how many candidates Reduce draws before giving up.
func WithMaxRetries(n int) Option {
	return func(g *Generator) {
		g.maxRetries = n
	}
}

// Generator hands out short keys for canonical URLs.
// It is safe for concurrent use.
type Generator struct {
	mu       sync.Mutex
	keyToURL map[string]string
	urlToKey map[string]string

	length     int
	maxRetries int
	draw       func(alphabet string, size int) (string, error)
}

func New(opts ...Option) *Generator {
	g := &Generator{
		keyToURL:   make(map[string]string),
		urlToKey:   make(map[string]string),
		length:     DefaultLength,
		maxRetries: DefaultMaxRetries,
		draw:       gonanoid.Generate,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Reduce returns the key mapped to canonicalURL, allocating a fresh one if the
// URL has not been seen before. A fresh key is never one already present in
// the key set; ErrExhaustedKeyspace is returned when no free key was drawn
// within the retry ceiling.
func (g *Generator) Reduce(canonicalURL string) (string, error) {
	const op = "keygen.Generator.Reduce"

	g.mu.Lock()
	defer g.mu.Unlock()

	if key, ok := g.urlToKey[canonicalURL]; ok {
		return key, nil
	}

	for i := 0; i < g.maxRetries; i++ {
		key, err := g.draw(Alphabet, g.length)
		if err != nil {
			return "", fmt.Errorf("%s: failed to draw key: %w", op, err)
		}

		if _, taken := g.keyToURL[key]; taken {
			continue
		}

		g.keyToURL[key] = canonicalURL
		g.urlToKey[canonicalURL] = key

		return key, nil
	}

	return "", fmt.Errorf("%s: %w", op, entity.ErrExhaustedKeyspace)
}

// Expand returns the canonical URL mapped to key.
func (g *Generator) Expand(key string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	url, ok := g.keyToURL[key]
	return url, ok
}

// Claim records an externally assigned key, such as a custom key or one loaded
// from storage, so that Reduce never hands it out. It reports false and
// changes nothing if either the key or the URL is already mapped.
func (g *Generator) Claim(key, canonicalURL string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.keyToURL[key]; ok {
		return false
	}
	if _, ok := g.urlToKey[canonicalURL]; ok {
		return false
	}

	g.keyToURL[key] = canonicalURL
	g.urlToKey[canonicalURL] = key

	return true
}

// Release forgets key and the URL mapped to it.
func (g *Generator) Release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	url, ok := g.keyToURL[key]
	if !ok {
		return
	}

	delete(g.keyToURL, key)
	if g.urlToKey[url] == key {
		delete(g.urlToKey, url)
	}
}

// Reset forgets every mapping.
func (g *Generator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.keyToURL = make(map[string]string)
	g.urlToKey = make(map[string]string)
}

// Len returns the number of keys currently mapped.
func (g *Generator) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.keyToURL)
}
