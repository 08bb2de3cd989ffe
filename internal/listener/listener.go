// Package listener runs the intake loop: pull run attachments from a mailbox,
// process the new runs and export their matches.
package listener

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"chemrecon/internal/config"
	"chemrecon/internal/connectors"
	gmailconnector "chemrecon/internal/connectors/gmail"
	imapconnector "chemrecon/internal/connectors/imap"
	"chemrecon/internal/logging"
	"chemrecon/internal/pipeline"
)

// InboxDir is where fetched run files are stored.
func InboxDir(cfg config.Config) string {
	return filepath.Join(cfg.RunsDir, "inbox")
}

type Service struct {
	cfg       config.Config
	fetch     *connectors.FetchService
	processor *pipeline.RunProcessor
	logger    *slog.Logger
	now       func() time.Time
}

// CycleResult summarizes one fetch-process-export pass.
type CycleResult struct {
	Fetch     connectors.FetchResult
	Processed int
	Failed    int
	Matched   int
	Export    string
}

func NewService(cfg config.Config, source connectors.RunSource, processor *pipeline.RunProcessor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:       cfg,
		fetch:     connectors.NewFetchService(InboxDir(cfg), source, logger),
		processor: processor,
		logger:    logger.With("component", "watcher"),
		now:       time.Now,
	}
}

// Run repeats RunCycle every IntakeIntervalSec until ctx is done. Cycle
// errors are logged and the loop keeps polling.
func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(max(1, s.cfg.IntakeIntervalSec)) * time.Second
	s.logger.InfoContext(ctx, "watcher started", "provider", s.cfg.IntakeProvider, "label", s.cfg.IntakeLabel, "interval", interval.String())
	for {
		if _, err := s.RunCycle(ctx); err != nil && ctx.Err() == nil {
			s.logger.ErrorContext(ctx, "watcher cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			s.logger.Info("watcher stopped")
			return nil
		case <-time.After(interval):
		}
	}
}

func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	ctx = logging.WithRunID(ctx, logging.NewRunID())

	fetched, err := s.fetch.FetchAndStore(ctx, s.cfg.IntakeLabel, s.cfg.IntakeFetchMax)
	if err != nil {
		return CycleResult{}, fmt.Errorf("fetch runs: %w", err)
	}
	res := CycleResult{Fetch: fetched}
	if len(fetched.Paths) == 0 {
		s.logger.InfoContext(ctx, "watcher cycle done", "fetched", fetched.Fetched, "stored", 0)
		return res, nil
	}

	items, err := s.processor.ProcessBatch(ctx, fetched.Paths)
	if err != nil {
		return res, err
	}
	results := make([]pipeline.RunResult, 0, len(items))
	for _, it := range items {
		if it.Err != nil {
			res.Failed++
			continue
		}
		res.Processed++
		res.Matched += it.Result.Summary.MatchedSamples
		results = append(results, it.Result)
	}

	if s.cfg.IntakeAutoExport && len(results) > 0 {
		out := filepath.Join(s.cfg.OutputDir, "intake", exportName(s.now()))
		if err := pipeline.ExportMatchedResults(results, s.cfg.ExportPayloadColumns, out); err != nil {
			return res, fmt.Errorf("export intake results: %w", err)
		}
		res.Export = out
	}

	s.logger.InfoContext(ctx, "watcher cycle done",
		"fetched", fetched.Fetched,
		"stored", fetched.Stored,
		"skipped", fetched.Skipped,
		"processed", res.Processed,
		"failed", res.Failed,
		"matched", res.Matched,
		"export", res.Export,
	)
	return res, nil
}

func exportName(t time.Time) string {
	return t.UTC().Format("20060102T150405Z") + "_" + pipeline.MatchedResultsFileName
}

// NewSource builds the run source named by INTAKE_PROVIDER.
func NewSource(ctx context.Context, cfg config.Config) (connectors.RunSource, error) {
	switch provider := strings.ToLower(strings.TrimSpace(cfg.IntakeProvider)); provider {
	case "gmail":
		return gmailconnector.NewConnector(ctx, cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported intake provider: %s", provider)
	}
}
