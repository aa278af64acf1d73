package pref

import (
	"fmt"

	"github.com/ValentinKolb/prefkv/lib/codec"
	"github.com/ValentinKolb/prefkv/lib/store"
)

// DefaultQualifier is used for keys created without a qualifier
const DefaultQualifier = "default"

// Key identifies a cell within a scope. The store entry is addressed by Name
// only, Type and Qualifier just separate cache entries.
type Key struct {
	Name      string
	Type      codec.Type
	Qualifier string
}

// NewKey builds a key, an empty qualifier becomes DefaultQualifier
func NewKey(name string, t codec.Type, qualifier string) Key {
	if qualifier == "" {
		qualifier = DefaultQualifier
	}
	return Key{Name: name, Type: t, Qualifier: qualifier}
}

// String returns the structural form name::type::qualifier. The name is
// length prefixed, so names containing "::" cannot collide.
func (k Key) String() string {
	return fmt.Sprintf("%d:%s::%s::%s", len(k.Name), k.Name, k.Type, k.Qualifier)
}

// --------------------------------------------------------------------------
// Kinds
// --------------------------------------------------------------------------

// Value is the closed set of types a preference can hold
type Value interface {
	bool | int32 | int64 | float32 | string
}

// Kind ties a value type to its typed store functions
type Kind[T Value] struct {
	Type codec.Type
	Get  func(s store.IStore, key string, defValue T) (T, error)
	Put  func(e store.Editor, key string, value T) store.Editor
}

var (
	BoolKind    = Kind[bool]{Type: codec.TypeBool, Get: store.IStore.GetBool, Put: store.Editor.PutBool}
	Int32Kind   = Kind[int32]{Type: codec.TypeInt32, Get: store.IStore.GetInt32, Put: store.Editor.PutInt32}
	Int64Kind   = Kind[int64]{Type: codec.TypeInt64, Get: store.IStore.GetInt64, Put: store.Editor.PutInt64}
	Float32Kind = Kind[float32]{Type: codec.TypeFloat32, Get: store.IStore.GetFloat32, Put: store.Editor.PutFloat32}
	StringKind  = Kind[string]{Type: codec.TypeString, Get: store.IStore.GetString, Put: store.Editor.PutString}
)

// Validate returns a ConfigurationError for kinds outside the closed type set
// or without store functions
func (k Kind[T]) Validate() error {
	switch k.Type {
	case codec.TypeBool, codec.TypeInt32, codec.TypeInt64, codec.TypeFloat32, codec.TypeString:
	default:
		return configurationError("unsupported value type %s", k.Type)
	}
	if k.Get == nil || k.Put == nil {
		return configurationError("kind %s has no store functions", k.Type)
	}
	return nil
}

// KindOf returns the predefined kind for T
func KindOf[T Value]() (Kind[T], error) {
	var zero T
	var kind any
	switch any(zero).(type) {
	case bool:
		kind = BoolKind
	case int32:
		kind = Int32Kind
	case int64:
		kind = Int64Kind
	case float32:
		kind = Float32Kind
	case string:
		kind = StringKind
	}
	k, ok := kind.(Kind[T])
	if !ok {
		return Kind[T]{}, configurationError("no preference kind for %T", zero)
	}
	return k, nil
}
