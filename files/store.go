// Package files implements the content-addressed blob store described in
// SPEC_FULL.md §4.2: a Store writes each distinct payload once, named by its
// digest, and serves it back verbatim. Writes are staged and applied through
// a Transaction so a composite repository can fan an Append or Delete out
// across several part repositories atomically.
package files

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/coldconveyor/conveyor/data"
	"github.com/coldconveyor/conveyor/digest"
	"github.com/coldconveyor/conveyor/errs"
	"github.com/coldconveyor/conveyor/transform"
)

// Store is a content-addressed blob store rooted at a directory. The zero
// value is not usable; construct one with New.
type Store struct {
	root     string
	suffix   string
	prepare  transform.Transform[[]byte, []byte]
	sidestep transform.SafeTransform[[]byte, []byte]
	pathify  transform.Transform[digest.Digest, []string]
	metrics  *metrics

	mu  *sync.Mutex
	txn *transaction
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithMetrics registers a Store's operation counters with reg. A nil reg (or
// not supplying this option) leaves metrics disabled.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(s *Store) { s.metrics = newMetrics(reg) }
}

// New builds a Store rooted at root. prepare encodes/decodes blob bytes on
// their way to and from disk (e.g. compression); sidestep perturbs bytes
// that collide on path but not on prepare's output, so the second writer
// gets a distinct location instead of silently losing data.
func New(root, suffix string, prepare transform.Transform[[]byte, []byte], sidestep transform.SafeTransform[[]byte, []byte], pathify transform.Transform[digest.Digest, []string], opts ...Option) *Store {
	s := &Store{
		root:     root,
		suffix:   suffix,
		prepare:  prepare,
		sidestep: sidestep,
		pathify:  pathify,
		mu:       &sync.Mutex{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// path derives the on-disk location of d's blob.
func (s *Store) path(d digest.Digest) (string, error) {
	components, err := s.pathify.Apply(d)
	if err != nil {
		return "", errs.Wrap(errs.StorageBackend, err, "derive path")
	}
	parts := append([]string{s.root}, components...)
	return filepath.Join(parts...) + s.suffix, nil
}

// Append stores data, keyed by its digest. Empty data is never written; the
// empty digest is a sentinel every Store treats as already present.
func (s *Store) Append(ctx context.Context, d data.Data) error {
	if d.IsEmpty() {
		return nil
	}

	tx, commit, rollback, err := s.Transaction(ctx)
	if err != nil {
		return err
	}

	target, err := tx.path(d.Digest())
	if err != nil {
		rollback()
		return err
	}

	tx.txn.stageAppend(appendOp{
		path:  target,
		value: d.Value(),
		equalPath: func(altValue []byte) string {
			p, perr := tx.path(digest.Of(altValue))
			if perr != nil {
				return target
			}
			return p
		},
	})

	if err := commit(); err != nil {
		s.metrics.record("append", err)
		return err
	}
	s.metrics.record("append", nil)
	return nil
}

// Get returns the data stored under d, or a NotFound error if none exists.
func (s *Store) Get(_ context.Context, d digest.Digest) (data.Data, error) {
	if d.IsEmpty() {
		return data.Empty, nil
	}

	target, err := s.path(d)
	if err != nil {
		return data.Data{}, err
	}

	raw, err := os.ReadFile(target)
	if err != nil {
		if os.IsNotExist(err) {
			s.metrics.record("get", err)
			return data.Data{}, errs.New(errs.NotFound, s.root+" "+d.String())
		}
		s.metrics.record("get", err)
		return data.Data{}, errs.Wrap(errs.StorageBackend, err, "read blob")
	}

	value, err := s.prepare.Invert().Apply(raw)
	if err != nil {
		s.metrics.record("get", err)
		return data.Data{}, errs.Wrap(errs.IntegrityCheck, err, "decode blob")
	}

	got, err := data.New(value, &d)
	if err != nil {
		err = errs.Wrap(errs.IntegrityCheck, err, "blob stored under %s", d)
		s.metrics.record("get", err)
		return data.Data{}, err
	}
	s.metrics.record("get", nil)
	return got, nil
}

// Delete removes the blob stored under d. Deleting a digest that is not
// present is a NotFound error; deleting the empty digest, for which no blob
// is ever stored, is a no-op.
func (s *Store) Delete(ctx context.Context, d digest.Digest) error {
	if d.IsEmpty() {
		return nil
	}

	tx, commit, rollback, err := s.Transaction(ctx)
	if err != nil {
		return err
	}

	target, err := tx.path(d)
	if err != nil {
		rollback()
		return err
	}

	tx.txn.stageDelete(deleteOp{path: target})

	if err := commit(); err != nil {
		s.metrics.record("delete", err)
		return err
	}
	s.metrics.record("delete", nil)
	return nil
}

// Contains reports whether d's blob exists.
func (s *Store) Contains(_ context.Context, d digest.Digest) (bool, error) {
	if d.IsEmpty() {
		return true, nil
	}
	target, err := s.path(d)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(target)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errs.Wrap(errs.StorageBackend, err, "stat blob")
}

// Len counts the blobs currently stored.
func (s *Store) Len(context.Context) (int, error) {
	count := 0
	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == s.suffix {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, errs.Wrap(errs.StorageBackend, err, "walk store root")
	}
	return count, nil
}

// Clear removes every blob under root.
func (s *Store) Clear(context.Context) error {
	if err := os.RemoveAll(s.root); err != nil {
		return errs.Wrap(errs.StorageBackend, err, "clear store")
	}
	return nil
}

// Transaction returns a handle sharing this Store's configuration but
// routing Append/Delete through a staged forward log instead of applying
// them immediately. Calling Transaction again on the returned handle before
// commit is a no-op: it shares the parent log and returns commit/rollback
// functions that do nothing, since only the outermost caller controls when
// the log is actually replayed.
func (s *Store) Transaction(context.Context) (*Store, func() error, func(), error) {
	if s.txn != nil {
		return s, func() error { return nil }, func() {}, nil
	}

	s.mu.Lock()
	clone := *s
	clone.txn = &transaction{}

	commit := func() error {
		defer s.mu.Unlock()
		return clone.apply()
	}
	rollback := func() {
		s.mu.Unlock()
	}
	return &clone, commit, rollback, nil
}

// apply replays the staged forward log, building a rollback log of inverse
// actions as each op succeeds. A failure partway through unwinds the
// rollback log in reverse order before returning the triggering error.
func (s *Store) apply() error {
	var undo []func() error

	rollbackAll := func() {
		for i := len(undo) - 1; i >= 0; i-- {
			_ = undo[i]()
		}
	}

	for _, op := range s.txn.appends {
		inverse, err := s.applyAppend(op)
		if err != nil {
			rollbackAll()
			return err
		}
		if inverse != nil {
			undo = append(undo, inverse)
		}
	}

	for _, op := range s.txn.deletes {
		inverse, err := s.applyDelete(op)
		if err != nil {
			rollbackAll()
			return err
		}
		if inverse != nil {
			undo = append(undo, inverse)
		}
	}

	return nil
}

// applyAppend performs the protocol in spec.md §4.2's Append section,
// returning a closure that undoes it.
func (s *Store) applyAppend(op appendOp) (func() error, error) {
	if _, err := os.Stat(op.path); os.IsNotExist(err) {
		if err := atomicCreate(op.path, s.prepare, op.value); err != nil {
			return nil, err
		}
		s.metrics.addBytes(len(op.value))
		path := op.path
		return func() error { return os.Remove(path) }, nil
	}

	existing, err := os.ReadFile(op.path)
	if err != nil {
		return nil, err
	}
	decoded, err := s.prepare.Invert().Apply(existing)
	if err != nil {
		return nil, errs.Wrap(errs.IntegrityCheck, err, "decode existing blob")
	}
	if bytesEqual(decoded, op.value) {
		return nil, nil
	}

	alt := s.sidestep.Apply(op.value)
	altPath := op.equalPath(alt)
	if err := atomicCreate(altPath, s.prepare, alt); err != nil {
		return nil, err
	}
	s.metrics.addBytes(len(alt))
	return func() error { return os.Remove(altPath) }, nil
}

// applyDelete unlinks op.path, returning a closure that restores the
// original bytes on rollback.
func (s *Store) applyDelete(op deleteOp) (func() error, error) {
	original, err := os.ReadFile(op.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New(errs.NotFound, op.path)
		}
		return nil, err
	}
	if err := os.Remove(op.path); err != nil {
		return nil, err
	}
	path := op.path
	return func() error { return os.WriteFile(path, original, 0o644) }, nil
}

// atomicCreate writes prepare(value) to path by first writing a temp file
// in the same directory and renaming it into place, grounded on
// internal/bundle/utils.go's SaveBundleToDisk.
func atomicCreate(path string, prepare transform.Transform[[]byte, []byte], value []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrap(errs.StorageBackend, err, "create blob directory")
	}

	encoded, err := prepare.Apply(value)
	if err != nil {
		return errs.Wrap(errs.IntegrityCheck, err, "encode blob")
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*"+filepath.Ext(path))
	if err != nil {
		return errs.Wrap(errs.StorageBackend, err, "create temp blob file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errs.Wrap(errs.StorageBackend, err, "write temp blob file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errs.Wrap(errs.StorageBackend, err, "sync temp blob file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errs.Wrap(errs.StorageBackend, err, "close temp blob file")
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errs.Wrap(errs.StorageBackend, err, "rename blob into place")
	}
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
