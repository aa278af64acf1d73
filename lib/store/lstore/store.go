package lstore

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/ValentinKolb/prefkv/lib/codec"
	"github.com/ValentinKolb/prefkv/lib/common"
	"github.com/ValentinKolb/prefkv/lib/db"
	"github.com/ValentinKolb/prefkv/lib/store"
)

var plog = logger.GetLogger("store")

// DefaultDebounce is the quiet period after a file event before the store reloads
const DefaultDebounce = 50 * time.Millisecond

// Options configures a file backed store
type Options struct {
	// Path of the snapshot file. Empty keeps the store in memory.
	Path string
	// Watch reloads the file when another process replaces it
	Watch bool
	// Debounce overrides DefaultDebounce
	Debounce time.Duration
}

type storeImpl struct {
	factory store.DBFactory
	db      db.KVDB
	index   atomic.Uint64

	listeners *xsync.MapOf[store.ChangeListener, struct{}]

	// commitMu serializes commits, snapshot writes and reloads
	commitMu     sync.Mutex
	path         string
	lastSnapshot []byte

	watcher  *fsnotify.Watcher
	debounce time.Duration
	done     chan struct{}
	wg       sync.WaitGroup

	closed atomic.Bool
}

// NewLocalStore creates a new in-memory store instance.
// This works by using the db created by factory directly.
func NewLocalStore(factory store.DBFactory) store.IStore {
	return newStore(factory)
}

// Open creates a store persisted to opts.Path. An existing file is loaded,
// a missing one is created on the first commit.
func Open(factory store.DBFactory, opts Options) (store.IStore, error) {
	s := newStore(factory)
	if opts.Path == "" {
		if opts.Watch {
			return nil, store.NewError(store.RetCUnsupportedOperation, "watching requires a file path")
		}
		return s, nil
	}
	if !s.db.SupportsFeature(db.FeatureSave | db.FeatureLoad) {
		return nil, store.NewError(store.RetCUnsupportedOperation, "persistence is not supported by the database")
	}

	path, err := filepath.Abs(opts.Path)
	if err != nil {
		return nil, store.NewError(store.RetCInternalError, err.Error())
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, store.NewError(store.RetCInternalError, err.Error())
	}
	s.path = path

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := s.db.Load(bytes.NewReader(data)); err != nil {
			return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("loading %s: %v", path, err))
		}
		s.index.Store(s.db.WriteIdx())
		s.lastSnapshot = data
	case os.IsNotExist(err):
	default:
		return nil, store.NewError(store.RetCInternalError, err.Error())
	}

	if opts.Watch {
		s.debounce = opts.Debounce
		if s.debounce <= 0 {
			s.debounce = DefaultDebounce
		}
		if err := s.startWatch(); err != nil {
			_ = s.db.Close()
			return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("watching %s: %v", path, err))
		}
	}
	return s, nil
}

func newStore(factory store.DBFactory) *storeImpl {
	return &storeImpl{
		factory:   factory,
		db:        factory(),
		listeners: xsync.NewMapOf[store.ChangeListener, struct{}](),
	}
}

// incAndGetIndex increments the index and returns the new value.
// It is used to ensure that each write operation has a unique index.
//
// Thread-safety: This method is thread-safe since it uses atomic operations.
func (s *storeImpl) incAndGetIndex() uint64 {
	return s.index.Add(1)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) read(key string) ([]byte, bool, error) {
	if s.closed.Load() {
		return nil, false, store.NewError(store.RetCClosed, "store is closed")
	}
	if !s.db.SupportsFeature(db.FeatureGet) {
		return nil, false, store.NewError(store.RetCUnsupportedOperation, "Get operation is not supported")
	}
	common.StoreReads.Inc()
	val, ok := s.db.Get(key)
	return val, ok, nil
}

func getTyped[T any](s *storeImpl, key string, defValue T, decode func([]byte) (T, error)) (T, error) {
	raw, ok, err := s.read(key)
	if err != nil {
		return defValue, err
	}
	if !ok {
		return defValue, nil
	}
	v, err := decode(raw)
	if err != nil {
		if errors.Is(err, codec.ErrTypeMismatch) {
			return defValue, store.NewError(store.RetCTypeMismatch, fmt.Sprintf("key %q: %v", key, err))
		}
		return defValue, store.NewError(store.RetCInternalError, fmt.Sprintf("key %q: %v", key, err))
	}
	return v, nil
}

func (s *storeImpl) GetBool(key string, defValue bool) (bool, error) {
	return getTyped(s, key, defValue, codec.DecodeBool)
}

func (s *storeImpl) GetInt32(key string, defValue int32) (int32, error) {
	return getTyped(s, key, defValue, codec.DecodeInt32)
}

func (s *storeImpl) GetInt64(key string, defValue int64) (int64, error) {
	return getTyped(s, key, defValue, codec.DecodeInt64)
}

func (s *storeImpl) GetFloat32(key string, defValue float32) (float32, error) {
	return getTyped(s, key, defValue, codec.DecodeFloat32)
}

func (s *storeImpl) GetString(key string, defValue string) (string, error) {
	return getTyped(s, key, defValue, codec.DecodeString)
}

func (s *storeImpl) Contains(key string) (bool, error) {
	if s.closed.Load() {
		return false, store.NewError(store.RetCClosed, "store is closed")
	}
	if !s.db.SupportsFeature(db.FeatureHas) {
		return false, store.NewError(store.RetCUnsupportedOperation, "Has operation is not supported")
	}
	return s.db.Has(key), nil
}

func (s *storeImpl) All() (map[string][]byte, error) {
	if s.closed.Load() {
		return nil, store.NewError(store.RetCClosed, "store is closed")
	}
	if !s.db.SupportsFeature(db.FeatureRange) {
		return nil, store.NewError(store.RetCUnsupportedOperation, "Range operation is not supported")
	}
	entries := make(map[string][]byte)
	s.db.Range(func(key string, value []byte) bool {
		entries[key] = value
		return true
	})
	return entries, nil
}

func (s *storeImpl) Edit() store.Editor {
	return &editorImpl{s: s}
}

func (s *storeImpl) RegisterChangeListener(l store.ChangeListener) {
	if l == nil {
		return
	}
	s.listeners.Store(l, struct{}{})
}

func (s *storeImpl) UnregisterChangeListener(l store.ChangeListener) {
	if l == nil {
		return
	}
	s.listeners.Delete(l)
}

func (s *storeImpl) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.watcher != nil {
		close(s.done)
		_ = s.watcher.Close()
		s.wg.Wait()
	}
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	return s.db.Close()
}

// --------------------------------------------------------------------------
// Commit
// --------------------------------------------------------------------------

// changeSet keeps changed keys unique and in first-change order
type changeSet struct {
	seen map[string]struct{}
	keys []string
}

func (c *changeSet) add(key string) {
	if c.seen == nil {
		c.seen = make(map[string]struct{})
	}
	if _, ok := c.seen[key]; ok {
		return
	}
	c.seen[key] = struct{}{}
	c.keys = append(c.keys, key)
}

// undoOp restores the value a key had before a batch was applied
type undoOp struct {
	key     string
	value   []byte
	existed bool
}

// applyLocked writes one batch into the db and returns the changed keys. If
// undo is not nil, the previous value of every changed key is appended to it.
//
// Thread-safety: The caller must hold commitMu.
func (s *storeImpl) applyLocked(clear bool, ops []editOp, undo *[]undoOp) []string {
	var changed changeSet
	remember := func(key string, old []byte, existed bool) {
		if undo == nil {
			return
		}
		if _, ok := changed.seen[key]; ok {
			return
		}
		*undo = append(*undo, undoOp{key: key, value: old, existed: existed})
	}

	if clear {
		var keys []string
		s.db.Range(func(key string, _ []byte) bool {
			keys = append(keys, key)
			return true
		})
		sort.Strings(keys)
		for _, key := range keys {
			old, ok := s.db.Get(key)
			remember(key, old, ok)
			s.db.Delete(key, s.incAndGetIndex())
			common.StoreWrites.Inc()
			changed.add(key)
		}
	}

	for _, op := range ops {
		old, ok := s.db.Get(op.key)
		if op.remove {
			if ok {
				remember(op.key, old, ok)
				s.db.Delete(op.key, s.incAndGetIndex())
				common.StoreWrites.Inc()
				changed.add(op.key)
			}
			continue
		}
		if ok && bytes.Equal(old, op.value) {
			continue
		}
		remember(op.key, old, ok)
		s.db.Set(op.key, op.value, s.incAndGetIndex())
		common.StoreWrites.Inc()
		changed.add(op.key)
	}
	return changed.keys
}

// rollbackLocked restores the values recorded by applyLocked
//
// Thread-safety: The caller must hold commitMu.
func (s *storeImpl) rollbackLocked(undo []undoOp) {
	for i := len(undo) - 1; i >= 0; i-- {
		op := undo[i]
		if op.existed {
			s.db.Set(op.key, op.value, s.incAndGetIndex())
		} else {
			s.db.Delete(op.key, s.incAndGetIndex())
		}
	}
}

// persistLocked writes a snapshot to a temporary file and renames it over the
// data file.
//
// Thread-safety: The caller must hold commitMu.
func (s *storeImpl) persistLocked() error {
	var buf bytes.Buffer
	if err := s.db.Save(&buf); err != nil {
		return err
	}

	dir, base := filepath.Split(s.path)
	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	s.lastSnapshot = buf.Bytes()
	return nil
}

// notify calls every listener once per key. No lock is held while the
// listeners run, so they may read from or write to the store.
func (s *storeImpl) notify(keys []string) {
	if len(keys) == 0 {
		return
	}
	var listeners []store.ChangeListener
	s.listeners.Range(func(l store.ChangeListener, _ struct{}) bool {
		listeners = append(listeners, l)
		return true
	})
	for _, key := range keys {
		for _, l := range listeners {
			common.StoreNotifications.Inc()
			l.OnPreferenceChanged(s, key)
		}
	}
}

// --------------------------------------------------------------------------
// Editor
// --------------------------------------------------------------------------

type editOp struct {
	key    string
	value  []byte
	remove bool
}

type editorImpl struct {
	s         *storeImpl
	ops       []editOp
	clear     bool
	committed bool
}

func (e *editorImpl) put(key string, value []byte) store.Editor {
	e.ops = append(e.ops, editOp{key: key, value: value})
	return e
}

func (e *editorImpl) PutBool(key string, value bool) store.Editor {
	return e.put(key, codec.EncodeBool(value))
}

func (e *editorImpl) PutInt32(key string, value int32) store.Editor {
	return e.put(key, codec.EncodeInt32(value))
}

func (e *editorImpl) PutInt64(key string, value int64) store.Editor {
	return e.put(key, codec.EncodeInt64(value))
}

func (e *editorImpl) PutFloat32(key string, value float32) store.Editor {
	return e.put(key, codec.EncodeFloat32(value))
}

func (e *editorImpl) PutString(key string, value string) store.Editor {
	return e.put(key, codec.EncodeString(value))
}

func (e *editorImpl) Remove(key string) store.Editor {
	e.ops = append(e.ops, editOp{key: key, remove: true})
	return e
}

func (e *editorImpl) Clear() store.Editor {
	e.clear = true
	return e
}

func (e *editorImpl) Commit() error {
	if e.committed {
		return store.NewError(store.RetCUnsupportedOperation, "editor was already committed")
	}
	e.committed = true

	s := e.s
	if !s.db.SupportsFeature(db.FeatureSet | db.FeatureDelete | db.FeatureRange) {
		return store.NewError(store.RetCUnsupportedOperation, "Commit is not supported by the database")
	}

	s.commitMu.Lock()
	if s.closed.Load() {
		s.commitMu.Unlock()
		return store.NewError(store.RetCClosed, "store is closed")
	}
	var undo []undoOp
	changed := s.applyLocked(e.clear, e.ops, &undo)
	if len(changed) > 0 && s.path != "" {
		if err := s.persistLocked(); err != nil {
			// a commit either reaches the file or leaves no trace
			s.rollbackLocked(undo)
			s.commitMu.Unlock()
			return store.NewError(store.RetCInternalError, fmt.Sprintf("writing %s: %v", s.path, err))
		}
	}
	s.commitMu.Unlock()

	s.notify(changed)
	return nil
}

// --------------------------------------------------------------------------
// File Watch
// --------------------------------------------------------------------------

// startWatch watches the directory of the data file. Atomic replacements
// create a new inode, so watching the file itself would lose track of it.
func (s *storeImpl) startWatch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		_ = watcher.Close()
		return err
	}
	s.watcher = watcher
	s.done = make(chan struct{})
	s.wg.Add(1)
	go s.watchLoop()
	return nil
}

func (s *storeImpl) watchLoop() {
	defer s.wg.Done()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(s.debounce, s.reloadFromWatch)
			} else {
				timer.Reset(s.debounce)
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			plog.Warningf("watcher error on %s: %v", s.path, err)

		case <-s.done:
			return
		}
	}
}

func (s *storeImpl) reloadFromWatch() {
	if err := s.reload(); err != nil {
		plog.Errorf("failed to reload %s: %v", s.path, err)
	}
}

// reload merges the data file into the db if it differs from the last
// snapshot this store has seen, then notifies for every changed key.
func (s *storeImpl) reload() error {
	s.commitMu.Lock()
	if s.closed.Load() {
		s.commitMu.Unlock()
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		s.commitMu.Unlock()
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if bytes.Equal(data, s.lastSnapshot) {
		s.commitMu.Unlock()
		return nil
	}

	fresh := s.factory()
	defer fresh.Close()
	if err := fresh.Load(bytes.NewReader(data)); err != nil {
		s.commitMu.Unlock()
		return err
	}

	changed := s.mergeLocked(fresh)
	s.lastSnapshot = data
	s.commitMu.Unlock()

	plog.Debugf("reloaded %s, %d keys changed", s.path, len(changed))
	s.notify(changed)
	return nil
}

// mergeLocked makes the db equal to fresh and returns the changed keys.
//
// Thread-safety: The caller must hold commitMu.
func (s *storeImpl) mergeLocked(fresh db.KVDB) []string {
	var removed []string
	s.db.Range(func(key string, _ []byte) bool {
		if !fresh.Has(key) {
			removed = append(removed, key)
		}
		return true
	})

	var ops []editOp
	fresh.Range(func(key string, value []byte) bool {
		ops = append(ops, editOp{key: key, value: value})
		return true
	})
	for _, key := range removed {
		ops = append(ops, editOp{key: key, remove: true})
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].key < ops[j].key })

	return s.applyLocked(false, ops, nil)
}
