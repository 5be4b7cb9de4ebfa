package delivery

import (
	"fmt"
	"os"
	"sync"
	"time"

	"storefront/internal/util"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
)

// Source hands out the current delivery config snapshot.
type Source interface {
	Snapshot() *Config
}

// StaticSource always returns the same config.
type StaticSource struct {
	cfg *Config
}

// NewStaticSource wraps a fixed config.
func NewStaticSource(cfg *Config) *StaticSource {
	return &StaticSource{cfg: cfg}
}

// Snapshot returns the wrapped config.
func (s *StaticSource) Snapshot() *Config {
	return s.cfg
}

// FileSource serves the delivery document from disk and reloads it when its
// modification time changes. A broken edit keeps the last good snapshot.
type FileSource struct {
	path    string
	schema  *jsonschema.Schema
	logger  *zap.Logger
	mu      sync.Mutex
	cfg     *Config
	modTime time.Time
	exists  bool
}

// NewFileSource loads the document at path. A missing file starts from
// DefaultConfig; an invalid one is an error.
func NewFileSource(path string) (*FileSource, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}

	s := &FileSource{
		path:   path,
		schema: schema,
		logger: util.GetLogger(),
		cfg:    DefaultConfig(),
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		s.logger.Warn("Delivery config not found, using defaults", zap.String("path", path))
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat delivery config: %w", err)
	}

	if err := s.load(info.ModTime()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileSource) load(modTime time.Time) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read delivery config: %w", err)
	}
	cfg, err := ParseConfig(data, s.schema)
	if err != nil {
		return err
	}
	s.cfg = cfg
	s.modTime = modTime
	s.exists = true
	s.logger.Info("Delivery config loaded",
		zap.String("path", s.path),
		zap.Int("shipping_rules", len(cfg.ShippingRules)))
	return nil
}

// Snapshot returns the current config, reloading it first if the file changed.
func (s *FileSource) Snapshot() *Config {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if err != nil {
		return s.cfg
	}
	if s.exists && info.ModTime().Equal(s.modTime) {
		return s.cfg
	}

	if err := s.load(info.ModTime()); err != nil {
		util.DeliveryConfigReloadsTotal.WithLabelValues("error").Inc()
		// Remember the broken mtime so the error is logged once per edit.
		s.modTime = info.ModTime()
		s.exists = true
		s.logger.Error("Delivery config reload failed, keeping previous snapshot",
			zap.String("path", s.path),
			zap.Error(err))
		return s.cfg
	}
	util.DeliveryConfigReloadsTotal.WithLabelValues("ok").Inc()
	return s.cfg
}
