// Package operation holds the fixed table of request operations.
package operation

import (
	"errors"
	"fmt"
)

// Operation names.
const (
	List    = "list"
	Get     = "get"
	Create  = "create"
	Update  = "update"
	Replace = "replace"
	Delete  = "delete"
)

// ErrUnsupportedOperation is matched by every *UnsupportedOperationError.
var ErrUnsupportedOperation = errors.New("unsupported operation")

// Operation describes the semantic verb of a request.
type Operation struct {
	Name string `json:"name"`
	// Write is true when the operation mutates the target resource.
	Write bool `json:"write"`
	// Body is true when the operation conventionally carries a payload.
	Body bool `json:"body"`
}

// UnsupportedOperationError is returned when a name is not in the table.
type UnsupportedOperationError struct {
	Name string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("operation %s not supported", e.Name)
}

// Is reports whether target is ErrUnsupportedOperation.
func (e *UnsupportedOperationError) Is(target error) bool {
	return target == ErrUnsupportedOperation
}

var (
	table = [...]Operation{
		{Name: List},
		{Name: Get},
		{Name: Create, Write: true, Body: true},
		{Name: Update, Write: true, Body: true},
		{Name: Replace, Write: true, Body: true},
		{Name: Delete, Write: true},
	}
	byName = func() map[string]Operation {
		m := make(map[string]Operation, len(table))
		for _, op := range table {
			m[op.Name] = op
		}
		return m
	}()
)

// Resolve looks up an operation by name.
func Resolve(name string) (Operation, error) {
	op, ok := byName[name]
	if !ok {
		return Operation{}, &UnsupportedOperationError{Name: name}
	}
	return op, nil
}

// All returns every operation in declaration order. The slice is a copy.
func All() []Operation {
	out := make([]Operation, len(table))
	copy(out, table[:])
	return out
}

// Supported reports whether name resolves.
func Supported(name string) bool {
	_, ok := byName[name]
	return ok
}
