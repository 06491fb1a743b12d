package dispatcher

import (
	"errors"
	"fmt"

	"github.com/morezero/serene/pkg/operation"
)

// ErrInvalidHandler is matched by every *InvalidHandlerError.
var ErrInvalidHandler = errors.New("invalid handler")

// ErrUnsupportedOperation is matched by every *UnsupportedOperationError.
var ErrUnsupportedOperation = operation.ErrUnsupportedOperation

// UnsupportedOperationError is returned when a request names an unknown operation.
type UnsupportedOperationError = operation.UnsupportedOperationError

// InvalidHandlerError is returned when a value registered with the
// dispatcher is neither a handler function nor a Handler.
type InvalidHandlerError struct {
	Type string
}

func (e *InvalidHandlerError) Error() string {
	return fmt.Sprintf("handler must be either a function or an object with a Handle method, got %s", e.Type)
}

// Is reports whether target is ErrInvalidHandler.
func (e *InvalidHandlerError) Is(target error) bool {
	return target == ErrInvalidHandler
}
