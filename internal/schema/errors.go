package schema

import "errors"

var (
	// ErrDuplicateField is returned when a field name is added twice to a block.
	ErrDuplicateField = errors.New("schema: duplicate field")
	// ErrMissingResponseType is returned when a non-enum field has no type.
	ErrMissingResponseType = errors.New("schema: missing response type")
	// ErrInvalidParamType is returned when a parameter type is not a scalar,
	// a raw type name, or an input/enum block.
	ErrInvalidParamType = errors.New("schema: invalid parameter type")
	// ErrDuplicateBlock is returned when a block name is registered twice.
	ErrDuplicateBlock = errors.New("schema: duplicate block")
	// ErrInvalidKind is returned for block kinds other than type, input and enum.
	ErrInvalidKind = errors.New("schema: invalid block kind")
)
