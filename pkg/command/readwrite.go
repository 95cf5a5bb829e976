package command

import (
	"sync"

	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/hypergrid/internal/sentinel"
)

// DataWrite is a single-key write. The primary owner of the key applies it first and
// then hands the outcome to the other write owners.
type DataWrite interface {
	Keyed
	// WriteState exposes the routing state of the write. Routing mutates it in place.
	WriteState() *Write
	// ReturnValueExpected reports whether the caller waits for the outcome.
	ReturnValueExpected() bool
	// UpdateStatusFromRemote records the outcome reported by the primary owner.
	UpdateStatusFromRemote(result any)
	// BackupWrite returns the write the backups apply once the primary applied this one.
	BackupWrite() *Write
}

var (
	_ DataWrite = (*Write)(nil)
	_ DataWrite = (*ReadWriteKey)(nil)
)

// Mutation is what a WriteFunc decided for one entry.
type Mutation struct {
	// Value replaces the current value unless Remove or Keep is set.
	Value  any
	Remove bool
	// Keep leaves the entry untouched.
	Keep bool
	// Result is handed back to the caller.
	Result any
}

// WriteFunc computes the next state of one entry. found is false when the key has no value.
type WriteFunc func(key string, value any, found bool, arg any) (Mutation, error)

// Built-in write functions.
const (
	// FuncIncrement adds arg (1 when nil) to a numeric value, starting from zero. The result is the new value.
	FuncIncrement = "increment"
	// FuncTake removes the entry. The result is the removed value.
	FuncTake = "take"
)

var (
	writeFunctionsMu sync.RWMutex
	writeFunctions   = map[string]WriteFunc{
		FuncIncrement: increment,
		FuncTake: func(_ string, value any, found bool, _ any) (Mutation, error) {
			if !found {
				return Mutation{Keep: true}, nil
			}

			return Mutation{Remove: true, Result: value}, nil
		},
	}
)

func increment(key string, value any, found bool, arg any) (Mutation, error) {
	if arg == nil {
		arg = int64(1)
	}

	if !found {
		value = int64(0)
	}

	cur, curInt, ok := number(value)
	if !ok {
		return Mutation{}, ewrap.Newf("increment %q: value of type %T is not a number", key, value)
	}

	delta, deltaInt, ok := number(arg)
	if !ok {
		return Mutation{}, ewrap.Newf("increment %q: delta of type %T is not a number", key, arg)
	}

	var next any = cur + delta
	if curInt && deltaInt {
		next = int64(cur) + int64(delta)
	}

	return Mutation{Value: next, Result: next}, nil
}

// number widens v to float64 and reports whether it was an integer.
func number(v any) (float64, bool, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true, true
	case int32:
		return float64(n), true, true
	case int64:
		return float64(n), true, true
	case float64:
		// values decoded from JSON are always float64
		return n, n == float64(int64(n)), true
	}

	return 0, false, false
}

// RegisterWriteFunction makes fn callable by name from ReadWriteKey on every node of the process.
func RegisterWriteFunction(name string, fn WriteFunc) {
	writeFunctionsMu.Lock()
	defer writeFunctionsMu.Unlock()

	writeFunctions[name] = fn
}

// LookupWriteFunction returns the write function registered under name.
func LookupWriteFunction(name string) (WriteFunc, error) {
	writeFunctionsMu.RLock()
	fn, ok := writeFunctions[name]
	writeFunctionsMu.RUnlock()

	if !ok {
		return nil, ewrap.Wrap(sentinel.ErrUnknownFunction, name)
	}

	return fn, nil
}

// ReadWriteKey applies a registered write function to one key on its primary owner.
// Once the function ran, WriteKind and Value hold its outcome; the backups receive
// that outcome as a plain write and never run the function.
type ReadWriteKey struct {
	Write

	Function string `json:"function"`
	Arg      any    `json:"arg,omitempty"`
}

// ReadWriteResult is the outcome of a ReadWriteKey.
type ReadWriteResult struct {
	Result any `json:"result,omitempty"`
	// Successful is false when the entry was left untouched.
	Successful bool `json:"successful"`
}

// NewReadWriteKey builds a functional write of key.
func NewReadWriteKey(key, function string, arg any, flags ...Flag) *ReadWriteKey {
	return &ReadWriteKey{
		Write: Write{
			Header:       NewHeader(flags...),
			WriteKind:    Put,
			Key:          key,
			Matcher:      MatchAlways,
			Load:         Owner,
			InvocationID: NewInvocationID(),
			Successful:   true,
		},
		Function: function,
		Arg:      arg,
	}
}

func (*ReadWriteKey) Kind() Kind { return KindReadWriteKey }

func (c *ReadWriteKey) Copy() Command {
	cp := *c

	return &cp
}

func (c *ReadWriteKey) WriteState() *Write { return &c.Write }

func (*ReadWriteKey) ReturnValueExpected() bool { return true }

func (c *ReadWriteKey) UpdateStatusFromRemote(result any) {
	if r, ok := result.(ReadWriteResult); ok {
		c.Successful = r.Successful
	}
}

func (c *ReadWriteKey) BackupWrite() *Write {
	backup := c.Write
	backup.Matcher = MatchAlways

	return &backup
}
