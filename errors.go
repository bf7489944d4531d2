package quadmosaic

// Error types attached with errors.WithType. They are also used as the
// error_type label of the frame error metric.
const (
	ErrTypeInvalidShape     = "invalid-shape"
	ErrTypeShapeMismatch    = "shape-mismatch"
	ErrTypeInvalidChannel   = "invalid-channel"
	ErrTypeInvalidPixel     = "invalid-pixel"
	ErrTypeInvalidTempo     = "invalid-tempo"
	ErrTypeInvalidOptions   = "invalid-options"
	ErrTypeFrameUnreadable  = "frame-unreadable"
	ErrTypeOutputUnwritable = "output-unwritable"
	ErrTypeTooManyFailures  = "too-many-failures"
)
