package store

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/prefkv/lib/db"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// DBFactory is a function type that creates a new db used by the store.
// This is used to abstract the creation of the db from the store implementation.
type DBFactory func() db.KVDB

// IStore is the interface of a persisted preference store.
// Typed reads return the stored value or defValue if the key is absent. A key
// stored with a different type than requested yields a RetCTypeMismatch error.
// All mutations go through an Editor and become visible on Commit.
type IStore interface {
	GetBool(key string, defValue bool) (value bool, err error)
	GetInt32(key string, defValue int32) (value int32, err error)
	GetInt64(key string, defValue int64) (value int64, err error)
	GetFloat32(key string, defValue float32) (value float32, err error)
	GetString(key string, defValue string) (value string, err error)

	// Contains returns whether a value is stored for key (of any type)
	Contains(key string) (loaded bool, err error)
	// All returns a copy of every entry in its encoded form (see lib/codec)
	All() (entries map[string][]byte, err error)

	// Edit starts a batch of mutations
	Edit() Editor

	// RegisterChangeListener adds l to the listeners notified for every mutated key.
	// Registering the same listener twice has no effect.
	RegisterChangeListener(l ChangeListener)
	// UnregisterChangeListener removes l. Removing an unknown listener is a no-op.
	UnregisterChangeListener(l ChangeListener)

	// Close releases the store. Reads and commits after Close fail with RetCClosed.
	Close() (err error)
}

// Editor collects mutations and applies them atomically on Commit.
// Clear is applied before all other mutations of the same batch regardless of
// the call order. An Editor must not be used after Commit.
type Editor interface {
	PutBool(key string, value bool) Editor
	PutInt32(key string, value int32) Editor
	PutInt64(key string, value int64) Editor
	PutFloat32(key string, value float32) Editor
	PutString(key string, value string) Editor
	Remove(key string) Editor
	Clear() Editor

	// Commit applies the batch and notifies the listeners once per changed key.
	// Writing a value equal to the stored one is not a change.
	Commit() (err error)
}

// ChangeListener is notified after a commit changed key. Listeners are
// compared by identity, implementations should be pointers.
type ChangeListener interface {
	OnPreferenceChanged(s IStore, key string)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("PrefStoreError (code %s): %s", e.Code, e.Msg)
}

// NewError creates a new PrefStoreError with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// IsCode reports whether err (or an error it wraps) is a *Error carrying code
func IsCode(err error, code RetCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by underlying database.
	RetCTypeMismatch                        // 3: Stored value has a different type than requested.
	RetCClosed                              // 4: Store was closed.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCTypeMismatch:
		return "TypeMismatch"
	case RetCClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}
