package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"sysmonitor/internal/fswatch"
	"sysmonitor/internal/schedule"
	logx "sysmonitor/pkg/logx"
)

const DefaultPath = "./settings.json"

type Options struct {
	// Floor is the minimum seconds value when hours and minutes are zero.
	Floor    time.Duration
	Debounce time.Duration
	Log      logx.Logger
}

// Store is a JSON file holding one Values document.
type Store struct {
	path string
	opt  Options
	log  logx.Logger

	mu   sync.Mutex
	last *Values
}

func NewStore(path string, opt Options) *Store {
	if path == "" {
		path = DefaultPath
	}
	if opt.Floor <= 0 {
		opt.Floor = schedule.FloorStrict
	}
	log := opt.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{path: path, opt: opt, log: log}
}

func (s *Store) Path() string         { return s.path }
func (s *Store) Floor() time.Duration { return s.opt.Floor }

// Exists reports whether settings were ever saved.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads the stored values. A missing file yields Defaults. Keys absent
// from the file keep their default value.
func (s *Store) Load() (Values, error) {
	v, err := s.read()
	if err != nil {
		return Values{}, err
	}
	s.remember(v)
	return v, nil
}

func (s *Store) read() (Values, error) {
	v := Defaults()
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return v, nil
	}
	if err != nil {
		return Values{}, fmt.Errorf("read settings: %w", err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return v, nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return Values{}, fmt.Errorf("decode settings %s: %w", s.path, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Values{}, fmt.Errorf("decode settings %s: trailing data", s.path)
	}
	return v, nil
}

// Save validates v and replaces the file atomically.
func (s *Store) Save(v Values) error {
	if err := v.Validate(s.opt.Floor); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	b = append(b, '\n')

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create settings dir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace settings: %w", err)
	}
	s.remember(v)
	s.log.Info("settings saved",
		logx.String("path", s.path),
		logx.Duration("interval", v.Interval()),
		logx.String("target_dir", v.TargetDirectory),
		logx.Int("usage_threshold", v.Threshold()),
	)
	return nil
}

// Reset saves the default interval with an empty directory and returns the result.
func (s *Store) Reset() (Values, error) {
	cur, err := s.read()
	if err != nil {
		// An unreadable file is replaced wholesale.
		s.log.Warn("settings unreadable; resetting to defaults", logx.Err(err))
		cur = Defaults()
	}
	v := cur.Reset()
	if err := s.Save(v); err != nil {
		return Values{}, err
	}
	return v, nil
}

// Watch calls fn with freshly loaded values whenever the file changes content.
// Unparseable or invalid files are logged and skipped. Blocks until ctx is done.
func (s *Store) Watch(ctx context.Context, fn func(Values)) error {
	return fswatch.Watch(ctx, s.path, fswatch.Options{Debounce: s.opt.Debounce, Log: s.log}, func() {
		if !s.Exists() {
			return
		}
		v, err := s.read()
		if err != nil {
			s.log.Warn("settings reload failed", logx.String("path", s.path), logx.Err(err))
			return
		}
		if err := v.Validate(0); err != nil {
			s.log.Warn("settings rejected", logx.String("path", s.path), logx.Err(err))
			return
		}
		if !s.remember(v) {
			s.log.Debug("settings unchanged; skipping", logx.String("path", s.path))
			return
		}
		fn(v)
	})
}

// remember records v as the last seen content and reports whether it changed.
func (s *Store) remember(v Values) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last != nil && *s.last == v {
		return false
	}
	s.last = &v
	return true
}
