package document

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Codec converts documents to and from their on-disk bytes.
type Codec interface {
	Serialize(doc *ProjectDocument) ([]byte, error)
	Parse(data []byte) (*ProjectDocument, error)
}

const (
	// FormatName marks a rotgis project file.
	FormatName = "rotgis-project"
	// FormatVersion is the newest file version this build writes and reads.
	FormatVersion = 1
)

type envelope struct {
	Format  string           `yaml:"format"`
	Version int              `yaml:"version"`
	Project *ProjectDocument `yaml:"project"`
}

// YAMLCodec stores projects as versioned YAML.
type YAMLCodec struct{}

func (YAMLCodec) Serialize(doc *ProjectDocument) ([]byte, error) {
	if doc == nil {
		doc = &ProjectDocument{}
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(envelope{Format: FormatName, Version: FormatVersion, Project: doc}); err != nil {
		return nil, fmt.Errorf("encoding project: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding project: %w", err)
	}
	return buf.Bytes(), nil
}

func (YAMLCodec) Parse(data []byte) (*ProjectDocument, error) {
	var env envelope
	if err := yaml.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding project: %w", err)
	}
	if env.Format != FormatName {
		return nil, fmt.Errorf("format %q: %w", env.Format, ErrUnsupportedFormat)
	}
	if env.Version < 1 || env.Version > FormatVersion {
		return nil, fmt.Errorf("version %d: %w", env.Version, ErrUnsupportedFormat)
	}
	doc := env.Project
	if doc == nil {
		doc = &ProjectDocument{}
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// Validate checks id uniqueness and the layer union tags.
func (d *ProjectDocument) Validate() error {
	seen := make(map[string]struct{})
	for _, id := range d.EntryIDs() {
		if id == "" {
			return fmt.Errorf("entry without id: %w", ErrInvalidInput)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("entry %q: %w", id, ErrDuplicateID)
		}
		seen[id] = struct{}{}
	}

	for _, pc := range d.PointClouds {
		layerIDs := make(map[string]struct{}, len(pc.Layers))
		for _, l := range pc.Layers {
			switch l.Kind {
			case KindMeasurement:
				if l.Measurement == nil || l.Annotation != nil {
					return fmt.Errorf("layer on %q: measurement payload mismatch: %w", pc.ID, ErrInvalidInput)
				}
			case KindAnnotation:
				if l.Annotation == nil || l.Measurement != nil {
					return fmt.Errorf("layer on %q: annotation payload mismatch: %w", pc.ID, ErrInvalidInput)
				}
			default:
				return fmt.Errorf("layer kind %q on %q: %w", l.Kind, pc.ID, ErrInvalidInput)
			}
			id := l.ID()
			if id == "" {
				return fmt.Errorf("layer without id on %q: %w", pc.ID, ErrInvalidInput)
			}
			if _, dup := layerIDs[id]; dup {
				return fmt.Errorf("layer %q on %q: %w", id, pc.ID, ErrDuplicateID)
			}
			layerIDs[id] = struct{}{}
		}
	}
	return nil
}
