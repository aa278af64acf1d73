package storetest

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/prefkv/lib/codec"
	"github.com/ValentinKolb/prefkv/lib/store"
)

// Recorder is an in-memory store.IStore that counts how often it is used.
// The preference layer is tested against it to assert how many reads, writes
// and listener registrations an operation causes.
//
// Thread-safety: All methods are safe for concurrent use. Listeners are called
// without holding the internal lock.
type Recorder struct {
	mu        sync.Mutex
	values    map[string][]byte
	listeners map[store.ChangeListener]struct{}
	commitErr error
	closed    bool

	gets        atomic.Int64
	puts        atomic.Int64
	commits     atomic.Int64
	registers   atomic.Int64
	unregisters atomic.Int64
}

// NewRecorder returns an empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{
		values:    make(map[string][]byte),
		listeners: make(map[store.ChangeListener]struct{}),
	}
}

// --------------------------------------------------------------------------
// Counters
// --------------------------------------------------------------------------

// Gets returns the number of typed reads
func (r *Recorder) Gets() int64 { return r.gets.Load() }

// Puts returns the number of Put calls on editors
func (r *Recorder) Puts() int64 { return r.puts.Load() }

// Commits returns the number of Commit calls, failed ones included
func (r *Recorder) Commits() int64 { return r.commits.Load() }

// Registers returns the number of RegisterChangeListener calls
func (r *Recorder) Registers() int64 { return r.registers.Load() }

// Unregisters returns the number of UnregisterChangeListener calls
func (r *Recorder) Unregisters() int64 { return r.unregisters.Load() }

// Listeners returns the number of currently registered listeners
func (r *Recorder) Listeners() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}

// FailCommits makes every following Commit return err without applying it.
// A nil err restores normal behavior.
func (r *Recorder) FailCommits(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commitErr = err
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func recordedGet[T any](r *Recorder, key string, defValue T, decode func([]byte) (T, error)) (T, error) {
	r.gets.Add(1)
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return defValue, store.NewError(store.RetCClosed, "store is closed")
	}
	raw, ok := r.values[key]
	r.mu.Unlock()
	if !ok {
		return defValue, nil
	}
	v, err := decode(raw)
	if err != nil {
		if errors.Is(err, codec.ErrTypeMismatch) {
			return defValue, store.NewError(store.RetCTypeMismatch, err.Error())
		}
		return defValue, store.NewError(store.RetCInternalError, err.Error())
	}
	return v, nil
}

func (r *Recorder) GetBool(key string, defValue bool) (bool, error) {
	return recordedGet(r, key, defValue, codec.DecodeBool)
}

func (r *Recorder) GetInt32(key string, defValue int32) (int32, error) {
	return recordedGet(r, key, defValue, codec.DecodeInt32)
}

func (r *Recorder) GetInt64(key string, defValue int64) (int64, error) {
	return recordedGet(r, key, defValue, codec.DecodeInt64)
}

func (r *Recorder) GetFloat32(key string, defValue float32) (float32, error) {
	return recordedGet(r, key, defValue, codec.DecodeFloat32)
}

func (r *Recorder) GetString(key string, defValue string) (string, error) {
	return recordedGet(r, key, defValue, codec.DecodeString)
}

func (r *Recorder) Contains(key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false, store.NewError(store.RetCClosed, "store is closed")
	}
	_, ok := r.values[key]
	return ok, nil
}

func (r *Recorder) All() (map[string][]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, store.NewError(store.RetCClosed, "store is closed")
	}
	entries := make(map[string][]byte, len(r.values))
	for k, v := range r.values {
		entries[k] = bytes.Clone(v)
	}
	return entries, nil
}

func (r *Recorder) Edit() store.Editor {
	return &recordingEditor{r: r}
}

func (r *Recorder) RegisterChangeListener(l store.ChangeListener) {
	r.registers.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners[l] = struct{}{}
}

func (r *Recorder) UnregisterChangeListener(l store.ChangeListener) {
	r.unregisters.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.listeners, l)
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// --------------------------------------------------------------------------
// Editor
// --------------------------------------------------------------------------

type recordedOp struct {
	key    string
	value  []byte
	remove bool
}

type recordingEditor struct {
	r         *Recorder
	ops       []recordedOp
	clear     bool
	committed bool
}

func (e *recordingEditor) put(key string, value []byte) store.Editor {
	e.r.puts.Add(1)
	e.ops = append(e.ops, recordedOp{key: key, value: value})
	return e
}

func (e *recordingEditor) PutBool(key string, value bool) store.Editor {
	return e.put(key, codec.EncodeBool(value))
}

func (e *recordingEditor) PutInt32(key string, value int32) store.Editor {
	return e.put(key, codec.EncodeInt32(value))
}

func (e *recordingEditor) PutInt64(key string, value int64) store.Editor {
	return e.put(key, codec.EncodeInt64(value))
}

func (e *recordingEditor) PutFloat32(key string, value float32) store.Editor {
	return e.put(key, codec.EncodeFloat32(value))
}

func (e *recordingEditor) PutString(key string, value string) store.Editor {
	return e.put(key, codec.EncodeString(value))
}

func (e *recordingEditor) Remove(key string) store.Editor {
	e.ops = append(e.ops, recordedOp{key: key, remove: true})
	return e
}

func (e *recordingEditor) Clear() store.Editor {
	e.clear = true
	return e
}

func (e *recordingEditor) Commit() error {
	r := e.r
	r.commits.Add(1)
	if e.committed {
		return store.NewError(store.RetCUnsupportedOperation, "editor was already committed")
	}
	e.committed = true

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return store.NewError(store.RetCClosed, "store is closed")
	}
	if r.commitErr != nil {
		err := r.commitErr
		r.mu.Unlock()
		return store.NewError(store.RetCInternalError, fmt.Sprintf("commit failed: %v", err))
	}

	seen := make(map[string]struct{})
	var changed []string
	mark := func(key string) {
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			changed = append(changed, key)
		}
	}

	if e.clear {
		keys := make([]string, 0, len(r.values))
		for k := range r.values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			delete(r.values, k)
			mark(k)
		}
	}
	for _, op := range e.ops {
		old, ok := r.values[op.key]
		if op.remove {
			if ok {
				delete(r.values, op.key)
				mark(op.key)
			}
			continue
		}
		if ok && bytes.Equal(old, op.value) {
			continue
		}
		r.values[op.key] = op.value
		mark(op.key)
	}

	listeners := make([]store.ChangeListener, 0, len(r.listeners))
	for l := range r.listeners {
		listeners = append(listeners, l)
	}
	r.mu.Unlock()

	for _, key := range changed {
		for _, l := range listeners {
			l.OnPreferenceChanged(r, key)
		}
	}
	return nil
}
