package document

import "errors"

var (
	// ErrEntryNotFound indicates no entry has the requested id.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrLayerNotFound indicates no layer has the requested id.
	ErrLayerNotFound = errors.New("layer not found")
	// ErrDuplicateID indicates an entry or layer id is already taken.
	ErrDuplicateID = errors.New("duplicate id")
	// ErrInvalidInput indicates invalid document input.
	ErrInvalidInput = errors.New("invalid document input")
	// ErrUnsupportedFormat indicates a project file the codec cannot read.
	ErrUnsupportedFormat = errors.New("unsupported project format")
)
