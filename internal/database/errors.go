package database

import (
	"errors"
	"fmt"
)

// Engine error taxonomy. Handlers map these onto HTTP codes; anything
// permission-shaped collapses to not-found externally so existence is
// never confirmed.
var (
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("forbidden")
	ErrReadOnlyField        = errors.New("field is read-only")
	ErrDuplicateDataKey     = errors.New("data key already used in sheet")
	ErrInvalidOptions       = errors.New("select options contain duplicate values")
	ErrPoolInUse            = errors.New("phone number is referenced by committed rows")
	ErrMissingRequiredField = errors.New("required field is missing")
)

// ImportError pinpoints the first failing cell of a bulk import. The
// whole file is rejected; nothing commits.
type ImportError struct {
	Row     int    `json:"row"`
	DataKey string `json:"data_key"`
	Reason  string `json:"reason"`
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import failed at row %d, column %q: %s", e.Row, e.DataKey, e.Reason)
}
