package document_test

import (
	"testing"

	"github.com/buggy-grass/rotgis-desktop-sub000/internal/domain/document"
	"github.com/stretchr/testify/require"
)

func TestYAMLCodec_Roundtrip(t *testing.T) {
	codec := document.YAMLCodec{}
	doc := &document.ProjectDocument{
		Name:             "quarry",
		CoordinateSystem: document.CoordinateSystem{Name: "UTM 35N", EPSG: 32635},
		PointClouds: []document.PointCloudEntry{{
			ID:        "pc-1",
			Name:      "north",
			AssetPath: "/data/north/metadata.json",
			Visible:   true,
			Layers: []document.Layer{
				{Kind: document.KindMeasurement, Measurement: &document.MeasurementLayer{
					ID: "m-1", Type: document.MeasurementArea,
					Points:  []document.Vec3{{X: 1}, {X: 2}, {Y: 3}},
					Shape:   document.ShapeFlags{ShowArea: true, Closed: true},
					Visible: true,
				}},
				{Kind: document.KindAnnotation, Annotation: &document.AnnotationLayer{
					ID: "a-1", Title: "Crusher", Position: document.Vec3{X: 5, Y: 5, Z: 1},
				}},
			},
		}},
		Meshes: []document.MeshEntry{{ID: "mesh-1", AssetPath: "/data/pit.obj", Visible: false}},
	}

	data, err := codec.Serialize(doc)
	require.NoError(t, err)
	require.Contains(t, string(data), "format: rotgis-project")

	parsed, err := codec.Parse(data)
	require.NoError(t, err)
	require.Equal(t, doc, parsed)
}

func TestYAMLCodec_RejectsForeignFiles(t *testing.T) {
	codec := document.YAMLCodec{}

	_, err := codec.Parse([]byte("format: something-else\nversion: 1\n"))
	require.ErrorIs(t, err, document.ErrUnsupportedFormat)

	_, err = codec.Parse([]byte("format: rotgis-project\nversion: 99\n"))
	require.ErrorIs(t, err, document.ErrUnsupportedFormat)

	_, err = codec.Parse([]byte("format: [unterminated"))
	require.Error(t, err)
}

func TestYAMLCodec_ValidatesLayers(t *testing.T) {
	codec := document.YAMLCodec{}
	data := []byte(`format: rotgis-project
version: 1
project:
  name: broken
  point_clouds:
    - id: pc-1
      asset_path: /a
      visible: true
      layers:
        - kind: measurement
`)
	_, err := codec.Parse(data)
	require.ErrorIs(t, err, document.ErrInvalidInput)
}
