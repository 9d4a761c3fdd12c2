package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse decodes every YAML document in data into schemas. A document is
// either one schema or a list of them. Kind defaults to stream.
func Parse(data []byte) ([]*EntitySchema, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var out []*EntitySchema
	for {
		var doc yaml.Node
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("schema: decode: %w", err)
		}

		var batch []EntitySchema
		root := &doc
		if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
			root = root.Content[0]
		}
		switch root.Kind {
		case yaml.SequenceNode:
			err = root.Decode(&batch)
		case yaml.MappingNode:
			batch = make([]EntitySchema, 1)
			err = root.Decode(&batch[0])
		}
		if err != nil {
			return nil, fmt.Errorf("schema: decode: %w", err)
		}

		for i := range batch {
			s := &batch[i]
			if s.Name == "" && len(s.Columns) == 0 {
				continue
			}
			if s.Kind == "" {
				s.Kind = Stream
			}
			s.Kind = Kind(strings.ToLower(string(s.Kind)))
			out = append(out, s)
		}
	}
	return out, nil
}

// LoadFile reads the schemas defined in one YAML file.
func LoadFile(path string) ([]*EntitySchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", path, err)
	}
	schemas, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return schemas, nil
}

// LoadDir reads every .yaml and .yml file in dir, in name order. A missing
// directory yields no schemas.
func LoadDir(dir string) ([]*EntitySchema, error) {
	entries, err := os.ReadDir(filepath.Clean(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("schema: list %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml":
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var out []*EntitySchema
	for _, name := range names {
		schemas, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, schemas...)
	}
	return out, nil
}

// Load builds a registry from a directory and a list of files. Either may
// be empty.
func Load(dir string, files ...string) (*Registry, error) {
	r := NewRegistry()
	if strings.TrimSpace(dir) != "" {
		schemas, err := LoadDir(dir)
		if err != nil {
			return nil, err
		}
		if err := r.Register(schemas...); err != nil {
			return nil, err
		}
	}
	for _, f := range files {
		schemas, err := LoadFile(f)
		if err != nil {
			return nil, err
		}
		if err := r.Register(schemas...); err != nil {
			return nil, err
		}
	}
	return r, nil
}
