package ir

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Format selects the on-disk encoding of a GraphDef.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFor picks the encoding from a file extension; YAML is the default.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	default:
		return FormatYAML
	}
}

// Decode reads a GraphDef and checks it against the GraphDef schema.
func Decode(r io.Reader, format Format) (*GraphDef, error) {
	var def GraphDef
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&def); err != nil {
			return nil, errors.Wrap(err, "failed to decode graph")
		}
	default:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&def); err != nil {
			return nil, errors.Wrap(err, "failed to decode graph")
		}
	}
	if err := ValidateSchema(&def); err != nil {
		return nil, err
	}
	return &def, nil
}

// Encode writes a GraphDef.
func Encode(w io.Writer, def *GraphDef, format Format) error {
	switch format {
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(def); err != nil {
			return errors.Wrap(err, "failed to encode graph")
		}
	default:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(def); err != nil {
			return errors.Wrap(err, "failed to encode graph")
		}
		if err := encoder.Close(); err != nil {
			return errors.Wrap(err, "failed to encode graph")
		}
	}
	return nil
}

// LoadFile reads a graph file, choosing the format from its extension.
func LoadFile(path string) (*GraphDef, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open graph file")
	}
	defer f.Close()

	return Decode(f, FormatFor(path))
}

// SaveFile writes a graph file, choosing the format from its extension.
func SaveFile(path string, def *GraphDef) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create graph file")
	}
	defer f.Close()

	if err := Encode(f, def, FormatFor(path)); err != nil {
		return err
	}
	return f.Close()
}
