package convert

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration classifies errors in how the schema is declared:
	// invalid routing configuration, duplicate blocks or fields, invalid
	// parameter types.
	ErrConfiguration = errors.New("convert: configuration error")
	// ErrDataIntegrity classifies descriptors the converter cannot interpret.
	ErrDataIntegrity = errors.New("convert: data integrity error")

	ErrMissingConfig   = errors.New("routing configuration is missing")
	ErrMissingTree     = errors.New("descriptor tree is missing")
	ErrUnknownPackage  = errors.New("package not found in descriptors")
	ErrUnresolvedType  = errors.New("unresolved type reference")
	ErrNotAMessageType = errors.New("method type is not a message")
)

func configurationError(err error) error {
	return fmt.Errorf("%w: %w", ErrConfiguration, err)
}

func dataIntegrityError(err error) error {
	return fmt.Errorf("%w: %w", ErrDataIntegrity, err)
}
