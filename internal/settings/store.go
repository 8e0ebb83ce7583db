package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

var (
	ErrNotFound      = errors.New("settings document not found")
	ErrBadIdentifier = errors.New("invalid identifier")
)

// Store keeps one JSON settings document per bot account identifier under a
// single directory. The bot process reads the same files, so writes are
// atomic (temp file + rename) and never leave a partial document behind.
type Store struct {
	dir    string
	schema *gojsonschema.Schema
}

// NewStore opens (creating if needed) the settings directory. When schemaPath
// is non-empty, every written document is validated against that JSON schema.
func NewStore(dir, schemaPath string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	s := &Store{dir: dir}
	if strings.TrimSpace(schemaPath) != "" {
		abs, err := filepath.Abs(schemaPath)
		if err != nil {
			return nil, err
		}
		sch, err := gojsonschema.NewSchema(gojsonschema.NewReferenceLoader("file://" + filepath.ToSlash(abs)))
		if err != nil {
			return nil, fmt.Errorf("load settings schema: %w", err)
		}
		s.schema = sch
	}
	return s, nil
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) path(identifier string) (string, error) {
	id := strings.TrimSpace(identifier)
	if id == "" || strings.ContainsAny(id, "/\\") || id == "." || id == ".." {
		return "", ErrBadIdentifier
	}
	return filepath.Join(s.dir, id+".json"), nil
}

func (s *Store) Read(identifier string) (json.RawMessage, error) {
	p, err := s.path(identifier)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return json.RawMessage(b), nil
}

func (s *Store) Write(identifier string, doc json.RawMessage) error {
	p, err := s.path(identifier)
	if err != nil {
		return err
	}
	if !json.Valid(doc) {
		return errors.New("document is not valid JSON")
	}
	if s.schema != nil {
		res, err := s.schema.Validate(gojsonschema.NewBytesLoader(doc))
		if err != nil {
			return fmt.Errorf("validate settings: %w", err)
		}
		if !res.Valid() {
			msgs := make([]string, 0, len(res.Errors()))
			for _, e := range res.Errors() {
				msgs = append(msgs, e.String())
			}
			return fmt.Errorf("settings document invalid: %s", strings.Join(msgs, "; "))
		}
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, doc, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

// Patch sets one nested value addressed by a dot-delimited path, creating
// intermediate objects as needed. Path segments that collide with non-object
// values are an error.
func (s *Store) Patch(identifier, dotPath string, value any) error {
	segs := strings.Split(strings.TrimSpace(dotPath), ".")
	if len(segs) == 0 || segs[0] == "" {
		return errors.New("empty patch path")
	}
	raw, err := s.Read(identifier)
	if err != nil {
		return err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("settings document is not an object: %w", err)
	}
	cur := doc
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg]
		if !ok || next == nil {
			m := map[string]any{}
			cur[seg] = m
			cur = m
			continue
		}
		m, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("path %q crosses a non-object value at %q", dotPath, seg)
		}
		cur = m
	}
	cur[segs[len(segs)-1]] = value
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return s.Write(identifier, out)
}

// List returns known identifiers, sorted.
func (s *Store) List() ([]string, error) {
	ents, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		out = append(out, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(out)
	return out, nil
}
