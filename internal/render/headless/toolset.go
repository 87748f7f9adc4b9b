package headless

import (
	"sync"

	"github.com/buggy-grass/rotgis-desktop-sub000/internal/scene"
)

// Insertion is the armed annotation tool state.
type Insertion struct {
	Title       string
	Description string
}

// Toolset is an in-memory measurement and annotation tool.
type Toolset struct {
	mu           sync.Mutex
	measurements []scene.Measurement
	annotations  []scene.Annotation
	detached     map[string]int
	insertion    *Insertion
}

var _ scene.Toolset = (*Toolset)(nil)

func newToolset() *Toolset {
	return &Toolset{detached: make(map[string]int)}
}

// Measurements implements scene.Toolset.
func (t *Toolset) Measurements() []scene.Measurement {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]scene.Measurement, len(t.measurements))
	copy(out, t.measurements)
	return out
}

// Measurement returns one measurement by id.
func (t *Toolset) Measurement(id string) (scene.Measurement, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i := t.measurementIndex(id); i >= 0 {
		return t.measurements[i], true
	}
	return scene.Measurement{}, false
}

// AddMeasurement implements scene.Toolset. An existing id is replaced.
func (t *Toolset) AddMeasurement(m scene.Measurement) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i := t.measurementIndex(m.ID); i >= 0 {
		t.measurements[i] = m
		return
	}
	t.measurements = append(t.measurements, m)
}

// RemoveMeasurement implements scene.Toolset.
func (t *Toolset) RemoveMeasurement(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i := t.measurementIndex(id); i >= 0 {
		t.measurements = append(t.measurements[:i:i], t.measurements[i+1:]...)
	}
}

// DetachMeasurement implements scene.Toolset.
func (t *Toolset) DetachMeasurement(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.detached[id]++
}

// Detached returns how often id was detached from the tool scene.
func (t *Toolset) Detached(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.detached[id]
}

// SetMeasurementVisible implements scene.Toolset.
func (t *Toolset) SetMeasurementVisible(id string, visible bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i := t.measurementIndex(id); i >= 0 {
		t.measurements[i].Visible = visible
	}
}

// Annotations implements scene.Toolset.
func (t *Toolset) Annotations() []scene.Annotation {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]scene.Annotation, len(t.annotations))
	copy(out, t.annotations)
	return out
}

// Annotation returns one annotation by id.
func (t *Toolset) Annotation(id string) (scene.Annotation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i := t.annotationIndex(id); i >= 0 {
		return t.annotations[i], true
	}
	return scene.Annotation{}, false
}

// AddAnnotation implements scene.Toolset. An existing id is replaced.
func (t *Toolset) AddAnnotation(a scene.Annotation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i := t.annotationIndex(a.ID); i >= 0 {
		t.annotations[i] = a
		return
	}
	t.annotations = append(t.annotations, a)
}

// RemoveAnnotation implements scene.Toolset.
func (t *Toolset) RemoveAnnotation(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i := t.annotationIndex(id); i >= 0 {
		t.annotations = append(t.annotations[:i:i], t.annotations[i+1:]...)
	}
}

// SetAnnotationVisible implements scene.Toolset.
func (t *Toolset) SetAnnotationVisible(id string, visible bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i := t.annotationIndex(id); i >= 0 {
		t.annotations[i].Visible = visible
	}
}

// StartInsertion implements scene.Toolset.
func (t *Toolset) StartInsertion(title, description string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.insertion = &Insertion{Title: title, Description: description}
}

// Insertion returns the armed annotation tool state.
func (t *Toolset) Insertion() (Insertion, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.insertion == nil {
		return Insertion{}, false
	}
	return *t.insertion, true
}

func (t *Toolset) takeInsertion() (Insertion, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.insertion == nil {
		return Insertion{}, false
	}
	in := *t.insertion
	t.insertion = nil
	return in, true
}

func (t *Toolset) measurementIndex(id string) int {
	for i, m := range t.measurements {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func (t *Toolset) annotationIndex(id string) int {
	for i, a := range t.annotations {
		if a.ID == id {
			return i
		}
	}
	return -1
}
