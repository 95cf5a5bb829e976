// Package serializer converts grid values to and from bytes for the
// persistence layer and any transport that ships opaque payloads.
//
// Codecs are looked up by name through a Registry: "json" (goccy/go-json),
// "msgpack" (shamaton/msgpack) and "cbor" (ugorji/go/codec). "default" is an
// alias of "msgpack".
package serializer

import (
	"sort"
	"sync"

	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/hypergrid/internal/sentinel"
)

// Names of the codecs registered by default.
const (
	Default = "default"
	JSON    = "json"
	Msgpack = "msgpack"
	CBOR    = "cbor"
)

// Serializer encodes and decodes values.
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Registry maps codec names to constructors.
type Registry struct {
	mu          sync.RWMutex
	serializers map[string]func() Serializer
}

func builtins() map[string]func() Serializer {
	return map[string]func() Serializer{
		Default: func() Serializer { return &MsgpackSerializer{} },
		JSON:    func() Serializer { return &JSONSerializer{} },
		Msgpack: func() Serializer { return &MsgpackSerializer{} },
		CBOR:    NewCBORSerializer,
	}
}

// NewRegistry returns a registry with the built-in codecs.
func NewRegistry() *Registry {
	r := NewEmptyRegistry()
	for name, fn := range builtins() {
		r.Register(name, fn)
	}

	return r
}

// NewEmptyRegistry returns a registry with no codecs.
func NewEmptyRegistry() *Registry {
	return &Registry{serializers: make(map[string]func() Serializer)}
}

// Register adds or replaces a codec.
func (r *Registry) Register(name string, fn func() Serializer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.serializers[name] = fn
}

// Names lists the registered codec names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.serializers))
	for name := range r.serializers {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// New builds the codec registered under name.
func (r *Registry) New(name string) (Serializer, error) {
	if name == "" {
		return nil, ewrap.Wrap(sentinel.ErrParamCannotBeEmpty, "serializer name")
	}

	r.mu.RLock()
	fn, ok := r.serializers[name]
	r.mu.RUnlock()

	if !ok {
		return nil, ewrap.Wrap(sentinel.ErrSerializerNotFound, name)
	}

	return fn(), nil
}

// New builds one of the built-in codecs.
func New(name string) (Serializer, error) {
	return NewRegistry().New(name)
}
