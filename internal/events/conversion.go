package events

import "time"

// ConversionStart is emitted before descriptors are converted to a schema.
type ConversionStart struct {
	Packages int
}

// ConversionFinish is emitted after a conversion run.
type ConversionFinish struct {
	Packages int
	Services int
	Methods  int
	Blocks   int
	// Empty is true when no field was produced and there is no schema.
	Empty    bool
	Err      error
	Duration time.Duration
}

// SchemaReload is emitted when the gateway rebuilds its schema after an
// input file changed.
type SchemaReload struct {
	Trigger  string
	Err      error
	Duration time.Duration
}
