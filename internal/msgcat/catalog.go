package msgcat

import (
    "embed"
    "errors"
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

// Catalog holds user-facing texts: embedded defaults plus an optional override directory.
// Values are text/template strings; missing data keys fail rendering.
type Catalog struct {
    mu    sync.RWMutex
    data  map[string]string // flattened dot-keys → template text
    cache map[string]*template.Template
}

// New loads the embedded defaults and then applies overrides from dir if provided.
func New(overrideDir string) (*Catalog, error) {
    base := &Catalog{data: make(map[string]string), cache: make(map[string]*template.Template)}

    if err := base.loadEmbedded(); err != nil {
        return nil, err
    }
    if strings.TrimSpace(overrideDir) != "" {
        if err := base.applyDir(overrideDir); err != nil {
            return nil, err
        }
    }
    return base, nil
}

// MustDefault returns the embedded catalog and panics if it is broken.
func MustDefault() *Catalog {
    c, err := New("")
    if err != nil {
        panic(err)
    }
    return c
}

func (c *Catalog) loadEmbedded() error {
    raw, err := fs.ReadFile(defaultFiles, "messages.en.yaml")
    if err != nil {
        return fmt.Errorf("read embedded messages: %w", err)
    }
    return c.applyYAML(raw)
}

func (c *Catalog) applyDir(dir string) error {
    entries, err := os.ReadDir(dir)
    if err != nil {
        return fmt.Errorf("read messages dir: %w", err)
    }
    files := make([]string, 0, len(entries))
    for _, e := range entries {
        if e.IsDir() { continue }
        n := e.Name()
        ext := strings.ToLower(filepath.Ext(n))
        if ext == ".yaml" || ext == ".yml" { files = append(files, n) }
    }
    sort.Strings(files)
    seen := make(map[string]string) // key -> filename
    for _, name := range files {
        b, err := os.ReadFile(filepath.Join(dir, name))
        if err != nil { return fmt.Errorf("read %s: %w", name, err) }
        flat, err := parseYAMLToFlat(b)
        if err != nil { return fmt.Errorf("parse %s: %w", name, err) }
        for k := range flat {
            if prev, ok := seen[k]; ok {
                return fmt.Errorf("duplicate override key %q in %s and %s", k, prev, name)
            }
            seen[k] = name
        }
        c.merge(flat)
    }
    return nil
}

func parseYAMLToFlat(b []byte) (map[string]string, error) {
    var m map[string]any
    if err := yaml.Unmarshal(b, &m); err != nil {
        return nil, err
    }
    flat := make(map[string]string)
    if err := flattenStrings(m, "", flat); err != nil {
        return nil, err
    }
    return flat, nil
}

func (c *Catalog) applyYAML(b []byte) error {
    flat, err := parseYAMLToFlat(b)
    if err != nil { return err }
    c.merge(flat)
    return nil
}

func (c *Catalog) merge(flat map[string]string) {
    c.mu.Lock()
    defer c.mu.Unlock()
    for k, v := range flat {
        c.data[k] = v
        delete(c.cache, k)
    }
}

func flattenStrings(src any, prefix string, out map[string]string) error {
    switch v := src.(type) {
    case map[string]any:
        for k, vv := range v {
            key := k
            if prefix != "" { key = prefix + "." + k }
            if err := flattenStrings(vv, key, out); err != nil { return err }
        }
        return nil
    case string:
        if prefix == "" { return errors.New("string value without key prefix") }
        out[prefix] = v
        return nil
    case nil:
        return nil
    default:
        // only string leaves
        return fmt.Errorf("unsupported value at %s: %T", prefix, v)
    }
}

// Render executes the template stored under key.
func (c *Catalog) Render(key string, data any) (string, error) {
    key = strings.TrimSpace(key)
    c.mu.RLock()
    tpl, ok := c.data[key]
    parsed := c.cache[key]
    c.mu.RUnlock()
    if !ok || strings.TrimSpace(tpl) == "" {
        return "", fmt.Errorf("template not found: %s", key)
    }
    if parsed == nil {
        t, err := template.New(key).Option("missingkey=error").Parse(tpl)
        if err != nil { return "", err }
        c.mu.Lock()
        c.cache[key] = t
        c.mu.Unlock()
        parsed = t
    }
    var b strings.Builder
    if err := parsed.Execute(&b, data); err != nil { return "", err }
    return b.String(), nil
}

// Text renders key, falling back to fallback when the key is missing or fails.
func (c *Catalog) Text(key string, data any, fallback string) string {
    if c == nil { return fallback }
    s, err := c.Render(key, data)
    if err != nil { return fallback }
    return s
}

// ErrorText is the human message for a protocol error code.
func (c *Catalog) ErrorText(code string, data any) string {
    return c.Text("error."+code, data, c.Text("error.internal", nil, code))
}

// Has reports whether key is present.
func (c *Catalog) Has(key string) bool {
    c.mu.RLock()
    defer c.mu.RUnlock()
    _, ok := c.data[key]
    return ok
}
