package flow

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Parse decodes a flow definition from JSON. Unknown fields (editor
// metadata like canvas positions) are ignored.
func Parse(data []byte) (*Flow, error) {
	var f Flow
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse flow: %w", err)
	}
	return &f, nil
}

// Encode renders the flow as indented JSON.
func (f *Flow) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode flow: %w", err)
	}
	return data, nil
}

// LoadFile reads a flow definition from disk. Files ending in .dot or .gv
// parse as Graphviz; everything else as JSON.
func LoadFile(path string) (*Flow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flow file: %w", err)
	}
	if strings.HasSuffix(path, ".dot") || strings.HasSuffix(path, ".gv") {
		return ParseDOT(string(data))
	}
	return Parse(data)
}
