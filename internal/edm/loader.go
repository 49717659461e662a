package edm

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// LoadCatalog reads a catalog document from path. Files ending in .cue are
// evaluated with CUE first; .json, .yaml, and .yml are decoded directly.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var doc Document
	switch filepath.Ext(path) {
	case ".cue":
		doc, err = decodeCUE(path, data)
	case ".json":
		err = json.Unmarshal(data, &doc)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	default:
		return nil, fmt.Errorf("read catalog %s: unsupported extension", path)
	}
	if err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", path, err)
	}

	return NewCatalog(doc)
}

// ParseCatalogYAML decodes and validates a YAML catalog document.
func ParseCatalogYAML(data []byte) (*Catalog, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return NewCatalog(doc)
}

// decodeCUE evaluates a CUE catalog and decodes its concrete JSON form, so
// that constraints written in the document are enforced before decoding.
func decodeCUE(path string, data []byte) (Document, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return Document{}, fmt.Errorf("compile: %w", err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Document{}, fmt.Errorf("validate: %w", err)
	}

	raw, err := v.MarshalJSON()
	if err != nil {
		return Document{}, fmt.Errorf("export: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}
