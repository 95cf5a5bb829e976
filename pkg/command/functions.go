package command

import (
	"sync"

	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/hypergrid/internal/sentinel"
)

// ReadFunc computes a result from the view of one entry. found is false when the key has no value.
type ReadFunc func(key string, value any, found bool, arg any) (any, error)

// Built-in read functions.
const (
	FuncValue   = "value"
	FuncExists  = "exists"
	FuncDefault = "value_or_default"
)

var (
	functionsMu sync.RWMutex
	functions   = map[string]ReadFunc{
		FuncValue: func(_ string, value any, _ bool, _ any) (any, error) {
			return value, nil
		},
		FuncExists: func(_ string, _ any, found bool, _ any) (any, error) {
			return found, nil
		},
		FuncDefault: func(_ string, value any, found bool, arg any) (any, error) {
			if !found {
				return arg, nil
			}

			return value, nil
		},
	}
)

// RegisterFunction makes fn callable by name from ReadOnlyKey and ReadOnlyMany on every node of the process.
func RegisterFunction(name string, fn ReadFunc) {
	functionsMu.Lock()
	defer functionsMu.Unlock()

	functions[name] = fn
}

// LookupFunction returns the function registered under name.
func LookupFunction(name string) (ReadFunc, error) {
	functionsMu.RLock()
	fn, ok := functions[name]
	functionsMu.RUnlock()

	if !ok {
		return nil, ewrap.Wrap(sentinel.ErrUnknownFunction, name)
	}

	return fn, nil
}
