package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"chemrecon/internal"
	"chemrecon/internal/calibration"
	"chemrecon/internal/catalog"
	"chemrecon/internal/config"
	"chemrecon/internal/discovery"
	"chemrecon/internal/logging"
)

// RunResult is everything derived from one analytic run file.
type RunResult struct {
	Summary   internal.RunSummary
	Matches   []internal.Match
	Workbook  internal.Workbook
	Data      internal.Table
	Standards calibration.Standards
	// StandardsFoundIn is the sheet the standards rows were read from.
	StandardsFoundIn string
	Reason           internal.Reason
}

// CalibrationRun hands the run's standards to a calibration session.
func (r RunResult) CalibrationRun(rules discovery.RuleSet) *calibration.Run {
	return calibration.NewRun(r.Summary.File, r.Standards, rules)
}

// RunProcessor detects sheets, standards and analytes of run files and matches
// their samples against the canonical catalog.
type RunProcessor struct {
	cfg     config.Config
	rules   discovery.RuleSet
	matcher *Matcher
	logger  *slog.Logger
}

func NewRunProcessor(cfg config.Config, cat *catalog.Catalog, logger *slog.Logger) *RunProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	rules := discovery.DefaultRules(cfg.Discovery)
	return &RunProcessor{
		cfg:     cfg,
		rules:   rules,
		matcher: NewMatcher(cat, rules, cfg.MatchThreshold),
		logger:  logger.With("component", "pipeline"),
	}
}

func (p *RunProcessor) Rules() discovery.RuleSet { return p.rules }

func (p *RunProcessor) ProcessFile(ctx context.Context, path string) (RunResult, error) {
	wb, err := ReadWorkbook(path)
	if err != nil {
		return RunResult{}, err
	}
	return p.ProcessWorkbook(ctx, filepath.Base(path), wb)
}

func (p *RunProcessor) ProcessWorkbook(ctx context.Context, name string, wb internal.Workbook) (RunResult, error) {
	if err := ctx.Err(); err != nil {
		return RunResult{}, err
	}
	start := time.Now()
	runID := logging.NewRunID()
	ctx = logging.WithRunID(ctx, runID)

	names := wb.SheetNames()
	if len(names) == 0 {
		return RunResult{}, fmt.Errorf("%s: workbook has no sheets", name)
	}
	dataSheet := DetectDataSheet(names, p.cfg.Discovery.DataSheetKeywords)
	data, _ := wb.Sheet(dataSheet)

	std, foundIn := FindStandards(wb, dataSheet, p.rules, p.cfg.StandardLabels)
	standardsSheet := DetectStandardsSheetName(names, p.cfg.Discovery.StandardsSheetKeywords)
	if standardsSheet == "" && std.Len() > 0 {
		standardsSheet = foundIn
	}

	cols, idReason := p.matcher.IdentifierColumns(data)
	matches := p.matcher.MatchRows(data)
	for i := range matches {
		matches[i].Run = name
	}

	res := RunResult{
		Summary: internal.RunSummary{
			RunID:              runID,
			File:               name,
			SheetNames:         names,
			DataSheet:          dataSheet,
			StandardsSheet:     standardsSheet,
			Analytes:           discovery.DeriveChannels(data.Headers, p.rules).Analytes(),
			TotalSamples:       len(data.Rows),
			MatchedSamples:     len(matches),
			IdentifierColumns:  cols,
			IdentifierFallback: idReason == internal.ReasonNoIdentifierColumn,
		},
		Matches:          matches,
		Workbook:         wb,
		Data:             data,
		Standards:        std,
		StandardsFoundIn: foundIn,
		Reason:           idReason,
	}
	if std.Len() == 0 {
		res.Reason = internal.ReasonNoStandards
		p.logger.WarnContext(ctx, "no calibration standards found", "file", name)
	}
	if idReason != internal.ReasonNone {
		p.logger.WarnContext(ctx, "no identifier column, matching on first column", "file", name, "column", data.FirstColumn())
	}

	p.logger.InfoContext(ctx, "run processed",
		"file", name,
		"data_sheet", dataSheet,
		"standards", std.Len(),
		"analytes", len(res.Summary.Analytes),
		"samples", res.Summary.TotalSamples,
		"matched", res.Summary.MatchedSamples,
		"ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// BatchItem is the outcome for one file of a batch.
type BatchItem struct {
	Path   string
	Result RunResult
	Err    error
}

// ProcessBatch processes files concurrently with at most BatchWorkers in
// flight. Items come back in the order of paths; a failing file does not stop
// the others.
func (p *RunProcessor) ProcessBatch(ctx context.Context, paths []string) ([]BatchItem, error) {
	items := make([]BatchItem, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, p.cfg.BatchWorkers))

	for i, path := range paths {
		g.Go(func() error {
			res, err := p.ProcessFile(gctx, path)
			items[i] = BatchItem{Path: path, Result: res, Err: err}
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				p.logger.Error("run failed", "file", path, "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}

// ListRunFiles returns target itself when it is a file, otherwise the
// supported workbooks directly inside it, sorted by name. Office lock files are skipped.
func ListRunFiles(target string) ([]string, error) {
	info, err := os.Stat(target)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{target}, nil
	}

	entries, err := os.ReadDir(target)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, "~$") || !SupportedExtension(name) {
			continue
		}
		out = append(out, filepath.Join(target, name))
	}
	sort.Strings(out)
	return out, nil
}
