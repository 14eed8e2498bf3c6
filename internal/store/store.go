package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/PratikDhanave/petcare-telemetry-service/internal/metrics"
)

// Store is the document store. Every operation on the same resolved key runs
// strictly one at a time in arrival order; distinct keys proceed concurrently.
type Store struct {
	backend Backend
	locks   *keyLocks
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Store)

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		locks:   newKeyLocks(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "store")
	return s
}

// Resolve validates a document name and returns its canonical key.
// Empty names, absolute paths and any ".." segment are rejected. Every
// trailing ".json" is stripped, so Resolve(key) == key for any key it returns.
func Resolve(name string) (string, error) {
	n := strings.TrimSpace(name)
	if n == "" {
		return "", fmt.Errorf("%w: empty name", ErrInvalidPath)
	}
	if strings.ContainsAny(n, "\\\x00") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	if strings.HasPrefix(n, "/") || (len(n) >= 2 && n[1] == ':') {
		return "", fmt.Errorf("%w: absolute path %q", ErrInvalidPath, name)
	}
	for _, seg := range strings.Split(n, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: traversal in %q", ErrInvalidPath, name)
		}
	}

	key := path.Clean(n)
	for strings.HasSuffix(key, fileExt) {
		key = strings.TrimSuffix(key, fileExt)
	}
	if key == "" || key == "." || key != path.Clean(key) || strings.HasPrefix(path.Base(key), ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	return key, nil
}

// Ping reports whether the backend is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// locked resolves name, waits for the key and runs fn while holding it.
func (s *Store) locked(ctx context.Context, op, name string, fn func(key string) error) error {
	key, err := Resolve(name)
	if err != nil {
		s.metrics.DocumentOp(op, err)
		return err
	}

	start := time.Now()
	if err := s.locks.acquire(ctx, key); err != nil {
		s.metrics.DocumentOp(op, err)
		return err
	}
	s.metrics.ObserveLockWait(time.Since(start))
	defer s.locks.release(key)

	err = fn(key)
	s.metrics.DocumentOp(op, err)
	return err
}

func (s *Store) load(ctx context.Context, key string) (any, error) {
	data, err := s.backend.Load(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedJSON, key, err)
	}
	return v, nil
}

func (s *Store) save(ctx context.Context, key string, value any) (any, error) {
	v, data, err := normalize(value)
	if err != nil {
		return nil, err
	}
	if err := s.backend.Save(ctx, key, data); err != nil {
		s.logger.Error("persist failed", "document", key, "error", err)
		return nil, fmt.Errorf("%w: %s: %v", ErrWriteFailure, key, err)
	}
	return v, nil
}

func (s *Store) Read(ctx context.Context, name string) (any, error) {
	var out any
	err := s.locked(ctx, "read", name, func(key string) error {
		v, err := s.load(ctx, key)
		out = v
		return err
	})
	return out, err
}

// Write replaces the document. Top-level null fields are dropped.
func (s *Store) Write(ctx context.Context, name string, value any) (any, error) {
	var out any
	err := s.locked(ctx, "write", name, func(key string) error {
		v, err := s.save(ctx, key, value)
		out = v
		return err
	})
	return out, err
}

// Merge shallow-unions partial over the current object; partial wins.
// A missing document counts as an empty object and a non-object one is replaced.
func (s *Store) Merge(ctx context.Context, name string, partial map[string]any) (any, error) {
	return s.update(ctx, "merge", name, func(current any) (any, error) {
		return MergeObjects(current, partial), nil
	})
}

// Update runs fn on the current value under the key lock and persists its result.
// current is nil when the document does not exist. Returning ErrSkipWrite keeps
// the stored document and makes Update return the current value.
func (s *Store) Update(ctx context.Context, name string, fn func(current any) (any, error)) (any, error) {
	return s.update(ctx, "update", name, fn)
}

func (s *Store) update(ctx context.Context, op, name string, fn func(current any) (any, error)) (any, error) {
	var out any
	err := s.locked(ctx, op, name, func(key string) error {
		current, err := s.load(ctx, key)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		next, err := fn(current)
		if errors.Is(err, ErrSkipWrite) {
			out = current
			return nil
		}
		if err != nil {
			return err
		}
		out, err = s.save(ctx, key, next)
		return err
	})
	return out, err
}

func (s *Store) Remove(ctx context.Context, name string) error {
	return s.locked(ctx, "remove", name, func(key string) error {
		if err := s.backend.Delete(ctx, key); err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrNotFound, key)
			}
			return fmt.Errorf("%w: delete %s: %v", ErrWriteFailure, key, err)
		}
		return nil
	})
}

// List returns the names of all stored documents.
func (s *Store) List(ctx context.Context) ([]string, error) {
	keys, err := s.backend.Keys(ctx)
	s.metrics.DocumentOp("list", err)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return keys, nil
}

// MergeObjects returns the shallow union of partial over current. Non-object
// current values are replaced outright.
func MergeObjects(current any, partial map[string]any) map[string]any {
	merged := make(map[string]any)
	if obj, ok := current.(map[string]any); ok {
		for k, v := range obj {
			merged[k] = v
		}
	}
	for k, v := range partial {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}
	return merged
}

// normalize round-trips value through JSON so the stored and returned values
// agree, dropping top-level null object fields.
func normalize(value any) (any, []byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: value is not JSON serializable: %v", ErrValidation, err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if obj, ok := v.(map[string]any); ok {
		for k, fv := range obj {
			if fv == nil {
				delete(obj, k)
			}
		}
		if raw, err = json.Marshal(obj); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}
	return v, raw, nil
}

// Decode converts a generic document value into T.
func Decode[T any](v any) (T, error) {
	var out T
	if v == nil {
		return out, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	return out, nil
}
