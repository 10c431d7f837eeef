package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/v0xg/shortweb/internal/action"
	"gopkg.in/yaml.v3"
)

// Format selects the serialization used for a document
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// Document is a named, ordered list of automation steps
type Document struct {
	Name    string          `json:"name" yaml:"name"`
	Actions []action.Action `json:"actions" yaml:"actions"`
}

// FormatFor picks the format from a file extension
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Load reads a document from disk
// A file holding a bare list of actions is named after the file
func Load(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer f.Close()

	doc, err := Decode(f, FormatFor(path))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if doc.Name == "" {
		doc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return doc, nil
}

// Save writes the document to disk, creating parent directories as needed
func (d *Document) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create document directory: %w", err)
		}
	}
	var buf bytes.Buffer
	if err := d.Encode(&buf, FormatFor(path)); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	return nil
}

// Decode reads a document in the given format
func Decode(r io.Reader, format Format) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}

	var doc Document
	switch format {
	case FormatYAML:
		var node yaml.Node
		if err := yaml.Unmarshal(data, &node); err != nil {
			return nil, err
		}
		if node.Kind == 0 {
			break
		}
		if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
			err = node.Content[0].Decode(&doc.Actions)
		} else {
			err = node.Decode(&doc)
		}
		if err != nil {
			return nil, err
		}
	default:
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			err = json.Unmarshal(trimmed, &doc.Actions)
		} else {
			err = json.Unmarshal(trimmed, &doc)
		}
		if err != nil {
			return nil, err
		}
	}
	return &doc, nil
}

// Encode writes the document in the given format
func (d *Document) Encode(w io.Writer, format Format) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(d); err != nil {
			return fmt.Errorf("encode document: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		if err := enc.Encode(d); err != nil {
			return fmt.Errorf("encode document: %w", err)
		}
		return nil
	}
}

// Duplicates returns index pairs of steps that are similar to an earlier step
func (d *Document) Duplicates() [][2]int {
	seen := make(map[string][]int)
	var pairs [][2]int
	for i, a := range d.Actions {
		for _, j := range seen[a.Key()] {
			if action.Similar(d.Actions[j], a) {
				pairs = append(pairs, [2]int{j, i})
				break
			}
		}
		seen[a.Key()] = append(seen[a.Key()], i)
	}
	return pairs
}
