package log

// Canonical field name constants for structured logging.
const (
	FieldService   = "service"
	FieldComponent = "component"
	FieldRunID     = "run_id"

	// Collection fields
	FieldSceneID  = "scene_id"
	FieldImages   = "images"
	FieldMethod   = "method"
	FieldProduct  = "product"
	FieldMetaType = "meta_type"

	// Temporal fields
	FieldIntervalStart = "interval_start"
	FieldIntervalEnd   = "interval_end"
	FieldIntervals     = "intervals"

	// IO fields
	FieldPath    = "path"
	FieldRow     = "row"
	FieldFrames  = "frames"
	FieldSamples = "samples"
)
