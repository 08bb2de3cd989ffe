package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"chemrecon/internal"
	"chemrecon/internal/config"
)

// ParseFunc turns raw workbook bytes into tables; name carries the extension.
type ParseFunc func(name string, content []byte) (internal.Workbook, error)

// SyncService acquires the master workbook from disk or over HTTP and builds the catalog.
type SyncService struct {
	cfg    config.Config
	client *Client
	parse  ParseFunc
	logger *slog.Logger
}

func NewSyncService(cfg config.Config, parse ParseFunc, logger *slog.Logger) *SyncService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncService{cfg: cfg, client: NewClient(cfg), parse: parse, logger: logger.With("component", "catalog")}
}

func (s *SyncService) Load(ctx context.Context) (*Catalog, error) {
	content, name, err := s.fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("load canonical data: %w", err)
	}
	wb, err := s.parse(name, content)
	if err != nil {
		return nil, fmt.Errorf("parse canonical data %s: %w", name, err)
	}

	table, err := pickSheet(wb, s.cfg.CanonicalSheet)
	if err != nil {
		return nil, err
	}
	cat, err := FromTable(table, s.cfg.CanonicalIDColumn)
	if err != nil {
		return nil, err
	}
	s.logger.Info("canonical data loaded", "source", s.cfg.CanonicalPath, "sheet", table.Name, "records", cat.Len())
	return cat, nil
}

func (s *SyncService) fetch(ctx context.Context) ([]byte, string, error) {
	location := s.cfg.CanonicalPath
	if !IsRemote(location) {
		content, err := os.ReadFile(location)
		return content, filepath.Base(location), err
	}

	content, name, err := s.client.Download(ctx, location)
	if err != nil {
		return nil, "", err
	}
	cachePath := filepath.Join(s.cfg.OutputDir, "canonical", name)
	if err := os.MkdirAll(filepath.Dir(cachePath), 0o755); err != nil {
		return nil, "", err
	}
	if err := os.WriteFile(cachePath, content, 0o644); err != nil {
		return nil, "", err
	}
	s.logger.Debug("canonical data downloaded", "url", location, "bytes", len(content), "cache", cachePath)
	return content, name, nil
}

func pickSheet(wb internal.Workbook, sheet string) (internal.Table, error) {
	if len(wb.Tables) == 0 {
		return internal.Table{}, errors.New("canonical workbook has no sheets")
	}
	if sheet == "" {
		return wb.Tables[0], nil
	}
	t, ok := wb.Sheet(sheet)
	if !ok {
		return internal.Table{}, fmt.Errorf("canonical sheet %q not found in %v", sheet, wb.SheetNames())
	}
	return t, nil
}
