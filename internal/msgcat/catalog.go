package msgcat

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/template"

	yaml "gopkg.in/yaml.v3"
)

//go:embed messages.en.yaml
var defaultFiles embed.FS

// Catalog loads user-facing string templates from the embedded defaults plus
// an optional override directory. Values render with text/template.
type Catalog struct {
	mu   sync.RWMutex
	data map[string]string // flattened dot-keys -> template text
}

// New loads the embedded default messages, then applies *.yaml overrides from
// dir if provided.
func New(overrideDir string) (*Catalog, error) {
	c := &Catalog{data: make(map[string]string)}
	raw, err := fs.ReadFile(defaultFiles, "messages.en.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded messages: %w", err)
	}
	if err := c.applyYAML(raw); err != nil {
		return nil, err
	}
	if strings.TrimSpace(overrideDir) != "" {
		if err := c.applyDir(overrideDir); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Catalog) applyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read template dir: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n := e.Name()
		if strings.HasSuffix(n, ".yaml") || strings.HasSuffix(n, ".yml") {
			files = append(files, n)
		}
	}
	sort.Strings(files)
	for _, n := range files {
		raw, err := os.ReadFile(filepath.Join(dir, n))
		if err != nil {
			return fmt.Errorf("read %s: %w", n, err)
		}
		if err := c.applyYAML(raw); err != nil {
			return fmt.Errorf("apply %s: %w", n, err)
		}
	}
	return nil
}

func (c *Catalog) applyYAML(raw []byte) error {
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	flatten("", doc, c.data)
	return nil
}

func flatten(prefix string, v any, out map[string]string) {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flatten(key, child, out)
		}
	case string:
		out[prefix] = val
	default:
		out[prefix] = fmt.Sprintf("%v", val)
	}
}

// Render resolves key and executes its template with data. Unknown keys fall
// back to the key itself so a missing message never breaks a response.
func (c *Catalog) Render(key string, data any) string {
	c.mu.RLock()
	text, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return key
	}
	tpl, err := template.New(key).Option("missingkey=error").Parse(text)
	if err != nil {
		return key
	}
	var b strings.Builder
	if err := tpl.Execute(&b, data); err != nil {
		return key
	}
	return b.String()
}
