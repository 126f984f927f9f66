package topics

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	yaml "gopkg.in/yaml.v3"
)

//go:embed topics.yaml
var defaultFiles embed.FS

var ErrTopicNotFound = errors.New("topic not found")

// Topic is one drawable subject offered to the drawer.
type Topic struct {
	ID   int    `yaml:"id"`
	Text string `yaml:"text"`
}

type topicFile struct {
	Topics []Topic `yaml:"topics"`
}

// Catalog holds the fixed topic set, loaded from the embedded defaults and
// optionally overridden by YAML files in a directory.
type Catalog struct {
	mu     sync.RWMutex
	byID   map[int]string
	sorted []int
}

// New loads the embedded topic set and then applies overrides from dir if
// provided. Override entries replace defaults with the same id.
func New(overrideDir string) (*Catalog, error) {
	c := &Catalog{byID: make(map[int]string)}

	raw, err := fs.ReadFile(defaultFiles, "topics.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded topics: %w", err)
	}
	if err := c.applyYAML(raw); err != nil {
		return nil, err
	}
	if strings.TrimSpace(overrideDir) != "" {
		if err := c.applyDir(overrideDir); err != nil {
			return nil, err
		}
	}
	c.reindex()
	return c, nil
}

func (c *Catalog) applyYAML(raw []byte) error {
	var f topicFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse topics: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range f.Topics {
		text := strings.TrimSpace(t.Text)
		if t.ID <= 0 || text == "" {
			continue
		}
		c.byID[t.ID] = text
	}
	return nil
}

func (c *Catalog) applyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read topics dir: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	for _, name := range files {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if err := c.applyYAML(b); err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
	}
	return nil
}

func (c *Catalog) reindex() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sorted = c.sorted[:0]
	for id := range c.byID {
		c.sorted = append(c.sorted, id)
	}
	sort.Ints(c.sorted)
}

// Get returns the display text for a topic id.
func (c *Catalog) Get(id int) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	text, ok := c.byID[id]
	if !ok {
		return "", ErrTopicNotFound
	}
	return text, nil
}

// Len reports the catalog size.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

// Offer draws n distinct topic ids uniformly at random without replacement.
// When the catalog holds fewer than n topics it returns all of them.
func (c *Catalog) Offer(n int) []int {
	c.mu.RLock()
	ids := append([]int(nil), c.sorted...)
	c.mu.RUnlock()

	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	if n > len(ids) {
		n = len(ids)
	}
	out := ids[:n]
	sort.Ints(out)
	return out
}
