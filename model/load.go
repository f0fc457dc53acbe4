package model

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// file is the YAML layout: either a models list or a single descriptor.
type file struct {
	Models []*Descriptor `yaml:"models"`
}

// LoadFile reads model descriptors from a YAML file. Several YAML documents
// in one file are allowed.
func LoadFile(path string) ([]*Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model file: %w", err)
	}
	defer f.Close()

	descs, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return descs, nil
}

// Load decodes and validates model descriptors.
func Load(r io.Reader) ([]*Descriptor, error) {
	dec := yaml.NewDecoder(r)
	var descs []*Descriptor
	for {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}

		docs, err := decodeDocument(&node)
		if err != nil {
			return nil, err
		}
		descs = append(descs, docs...)
	}

	for _, d := range descs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
	}
	return descs, nil
}

func decodeDocument(node *yaml.Node) ([]*Descriptor, error) {
	root := node
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping", root.Line)
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == "models" {
			var f file
			if err := root.Decode(&f); err != nil {
				return nil, fmt.Errorf("failed to decode models: %w", err)
			}
			return f.Models, nil
		}
	}

	var d Descriptor
	if err := root.Decode(&d); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}
	return []*Descriptor{&d}, nil
}
