package flags

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "flags.schema.json"

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, err
	}
	return c.Compile(schemaURL)
})

type override struct {
	Context string   `yaml:"context"`
	Include []string `yaml:"include"`
	Value   any      `yaml:"value"`
}

type flagDef struct {
	Name      string     `yaml:"name"`
	Default   any        `yaml:"default"`
	Overrides []override `yaml:"overrides,omitempty"`
}

type document struct {
	Flags []flagDef `yaml:"flags"`
}

// Parse validates a flag file against the schema and decodes it.
func Parse(data []byte) (map[string]flagDef, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse flag file: %w", err)
	}
	if raw == nil {
		raw = map[string]any{"flags": []any{}}
	}

	// the schema validator works on JSON values, so round trip through JSON
	asJSON, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("flag file is not representable as JSON: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(asJSON))
	if err != nil {
		return nil, err
	}
	schema, err := compileSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to compile flag schema: %w", err)
	}
	if err := schema.Validate(inst); err != nil {
		return nil, fmt.Errorf("invalid flag file: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode flag file: %w", err)
	}
	out := make(map[string]flagDef, len(doc.Flags))
	for _, f := range doc.Flags {
		if _, dup := out[f.Name]; dup {
			return nil, fmt.Errorf("flag %q defined twice", f.Name)
		}
		out[f.Name] = f
	}
	return out, nil
}

// FileClient serves flags from a YAML file.
type FileClient struct {
	path string

	mu    sync.RWMutex
	flags map[string]flagDef
}

var _ Client = (*FileClient)(nil)

// NewFileClient loads the flag file at path. An empty path serves defaults only.
func NewFileClient(path string) (*FileClient, error) {
	c := &FileClient{path: path, flags: map[string]flagDef{}}
	if path == "" {
		return c, nil
	}
	if err := c.reload(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *FileClient) reload() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("failed to read flag file: %w", err)
	}
	parsed, err := Parse(data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.flags = parsed
	c.mu.Unlock()
	slog.Info("Feature flags loaded", "path", c.path, "count", len(parsed))
	return nil
}

// Watch reloads the file whenever it changes until ctx is done. An invalid
// edit is logged and the previous flags stay in effect.
func (c *FileClient) Watch(ctx context.Context) error {
	if c.path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	// watch the directory: editors and config maps replace the file by rename
	if err := watcher.Add(filepath.Dir(c.path)); err != nil {
		return fmt.Errorf("watch %s: %w", c.path, err)
	}

	target := filepath.Clean(c.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				if err := c.reload(); err != nil {
					slog.Error("Keeping previous feature flags", "path", c.path, "error", err)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("Flag file watcher error", "error", err)
		}
	}
}

func (c *FileClient) value(flag string, fc Context) any {
	c.mu.RLock()
	def, ok := c.flags[flag]
	c.mu.RUnlock()
	if !ok {
		return defaults[flag]
	}

	for _, o := range def.Overrides {
		var id string
		switch o.Context {
		case "connection":
			id = fc.ConnectionID
		case "workspace":
			id = fc.WorkspaceID
		case "organization":
			id = fc.OrganizationID
		}
		if id != "" && slices.Contains(o.Include, id) {
			return o.Value
		}
	}
	return def.Default
}

// Bool implements Client. Non-boolean values evaluate to false.
func (c *FileClient) Bool(_ context.Context, flag string, fc Context) bool {
	b, _ := c.value(flag, fc).(bool)
	return b
}

// Int implements Client. Non-integer values evaluate to 0.
func (c *FileClient) Int(_ context.Context, flag string, fc Context) int {
	switch v := c.value(flag, fc).(type) {
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}
