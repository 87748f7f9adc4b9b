package scene

import "github.com/buggy-grass/rotgis-desktop-sub000/internal/domain/document"

// MarkerRule is the marker count a measurement shape needs to be complete.
// Max is zero when there is no upper bound.
type MarkerRule struct {
	Min int
	Max int
}

// Allows reports whether n markers satisfy the rule.
func (r MarkerRule) Allows(n int) bool {
	return n >= r.Min && (r.Max == 0 || n <= r.Max)
}

// RuleFor derives the marker requirement from the shape's display flags.
func RuleFor(shape document.ShapeFlags, maxMarkers int) MarkerRule {
	switch {
	case isPoint(shape, maxMarkers):
		return MarkerRule{Min: 1, Max: 1}
	case shape.ShowHeight:
		return MarkerRule{Min: 2, Max: 2}
	case shape.ShowCircle:
		return MarkerRule{Min: 3, Max: 3}
	case shape.ShowAngles && !shape.ShowArea:
		return MarkerRule{Min: 3, Max: 3}
	case shape.ShowArea || shape.Closed:
		return MarkerRule{Min: 3}
	default:
		return MarkerRule{Min: 2, Max: maxMarkers}
	}
}

// TypeFor derives the persisted measurement type from the display flags.
func TypeFor(shape document.ShapeFlags, maxMarkers int) document.MeasurementType {
	switch {
	case isPoint(shape, maxMarkers):
		return document.MeasurementPoint
	case shape.ShowArea:
		return document.MeasurementArea
	case shape.Closed:
		return document.MeasurementPolygon
	default:
		return document.MeasurementLine
	}
}

// Complete reports whether a measurement is a finished drawing: at least one
// marker off the origin and a marker count its shape accepts.
func Complete(m Measurement) bool {
	if allAtOrigin(m.Points) {
		return false
	}
	return RuleFor(m.Shape, m.MaxMarkers).Allows(len(m.Points))
}

func isPoint(shape document.ShapeFlags, maxMarkers int) bool {
	if maxMarkers == 1 {
		return true
	}
	return shape.ShowCoordinates && !shape.ShowDistances && !shape.ShowArea &&
		!shape.ShowAngles && !shape.ShowHeight && !shape.ShowCircle
}

func allAtOrigin(points []document.Vec3) bool {
	for _, p := range points {
		if !p.IsOrigin() {
			return false
		}
	}
	return true
}

// layerFromMeasurement converts a renderer measurement into its stored form.
func layerFromMeasurement(m Measurement) document.MeasurementLayer {
	return document.MeasurementLayer{
		ID:         m.ID,
		Name:       m.Name,
		Type:       TypeFor(m.Shape, m.MaxMarkers),
		Points:     append([]document.Vec3(nil), m.Points...),
		Shape:      m.Shape,
		MaxMarkers: m.MaxMarkers,
		Color:      m.Color,
		Visible:    true,
	}
}

// measurementFromLayer rebuilds a renderer measurement from a stored layer.
func measurementFromLayer(l document.MeasurementLayer, visible bool) Measurement {
	return Measurement{
		ID:         l.ID,
		Name:       l.Name,
		Points:     append([]document.Vec3(nil), l.Points...),
		Shape:      l.Shape,
		MaxMarkers: l.MaxMarkers,
		Color:      l.Color,
		Visible:    visible,
	}
}
