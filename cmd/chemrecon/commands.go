package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"chemrecon/internal"
	"chemrecon/internal/calibration"
	"chemrecon/internal/catalog"
	"chemrecon/internal/config"
	"chemrecon/internal/connectors"
	"chemrecon/internal/listener"
	"chemrecon/internal/pipeline"
	"chemrecon/internal/server"
	"chemrecon/internal/storage"
)

type app struct {
	cfg    config.Config
	logger *slog.Logger
	out    io.Writer
}

func (a *app) loadCatalog(ctx context.Context) (*catalog.Catalog, error) {
	return catalog.NewSyncService(a.cfg, pipeline.ParseWorkbook, a.logger).Load(ctx)
}

// calibrationSession processes one run without the canonical catalog and loads
// its standards into a fresh session.
func (a *app) calibrationSession(ctx context.Context, path string) (*calibration.Session, *calibration.Run, pipeline.RunResult, error) {
	proc := pipeline.NewRunProcessor(a.cfg, catalog.New(nil), a.logger)
	res, err := proc.ProcessFile(ctx, path)
	if err != nil {
		return nil, nil, pipeline.RunResult{}, err
	}
	run := res.CalibrationRun(proc.Rules())
	session := calibration.NewSession(a.logger)
	session.LoadRun(run)
	return session, run, res, nil
}

func (a *app) table(headers ...string) *tablewriter.Table {
	t := tablewriter.NewWriter(a.out)
	t.SetHeader(headers)
	t.SetAutoFormatHeaders(false)
	t.SetAutoWrapText(false)
	return t
}

func runMatch(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("match", flag.ExitOnError)
	runs := fs.String("runs", a.cfg.RunsDir, "run file or directory")
	out := fs.String("out", filepath.Join(a.cfg.OutputDir, pipeline.MatchedResultsFileName), "matched results xlsx")
	csvOut := fs.String("csv", "", "also write matches as csv")
	sqliteOut := fs.String("sqlite", "", "also write an sqlite report")
	_ = fs.Parse(args)

	cat, err := a.loadCatalog(ctx)
	if err != nil {
		return err
	}
	paths, err := pipeline.ListRunFiles(*runs)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no run files in %s", *runs)
	}

	items, err := pipeline.NewRunProcessor(a.cfg, cat, a.logger).ProcessBatch(ctx, paths)
	if err != nil {
		return err
	}
	results := []pipeline.RunResult{}
	t := a.table("File", "Data sheet", "Samples", "Matched", "Rate %", "Analytes")
	for _, it := range items {
		if it.Err != nil {
			t.Append([]string{filepath.Base(it.Path), "error: " + it.Err.Error(), "", "", "", ""})
			continue
		}
		s := it.Result.Summary
		t.Append([]string{s.File, s.DataSheet, strconv.Itoa(s.TotalSamples), strconv.Itoa(s.MatchedSamples),
			strconv.Itoa(s.MatchRatePercent()), strings.Join(s.Analytes, ", ")})
		results = append(results, it.Result)
	}
	t.Render()
	if len(results) == 0 {
		return errors.New("no run could be processed")
	}

	if err := pipeline.ExportMatchedResults(results, a.cfg.ExportPayloadColumns, *out); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "matched results written to %s\n", *out)
	if *csvOut != "" {
		if err := pipeline.ExportMatchesCSV(results, a.cfg.ExportPayloadColumns, *csvOut); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "matches csv written to %s\n", *csvOut)
	}
	if *sqliteOut != "" {
		report := storage.Report{}
		for _, res := range results {
			report.Runs = append(report.Runs, res.Summary)
			report.Matches = append(report.Matches, res.Matches...)
		}
		if err := storage.ExportReport(*sqliteOut, report); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "sqlite report written to %s\n", *sqliteOut)
	}
	return nil
}

func runAnalytes(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("analytes", flag.ExitOnError)
	run := fs.String("run", "", "run file")
	_ = fs.Parse(args)
	if err := required("run", *run); err != nil {
		return err
	}

	session, _, res, err := a.calibrationSession(ctx, *run)
	if err != nil {
		return err
	}
	overview, err := session.Overview()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s: %d standards from sheet %q\n", res.Summary.File, res.Standards.Len(), res.StandardsFoundIn)
	t := a.table("Analyte", "Channels", "Best R²", "Worst R²", "Quality")
	for _, o := range overview {
		t.Append([]string{o.Analyte, strconv.Itoa(o.Channels), formatFloat(o.BestR2), formatFloat(o.WorstR2), string(o.Quality)})
	}
	t.Render()
	return nil
}

func runCalibrate(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("calibrate", flag.ExitOnError)
	run := fs.String("run", "", "run file")
	analyte := fs.String("analyte", "", "analyte element, e.g. Mg")
	channel := fs.String("channel", "", "intensity column (default: best fit)")
	exclude := fs.String("exclude", "", "point indices to exclude, e.g. 0,3")
	_ = fs.Parse(args)
	if err := errors.Join(required("run", *run), required("analyte", *analyte)); err != nil {
		return err
	}
	indices, err := parseIndices(*exclude)
	if err != nil {
		return err
	}

	session, _, _, err := a.calibrationSession(ctx, *run)
	if err != nil {
		return err
	}
	st, err := session.SelectAnalyte(*analyte)
	if err != nil {
		return err
	}
	if *channel != "" {
		if st, err = session.SelectIntensityColumn(*analyte, *channel); err != nil {
			return err
		}
	}
	for _, i := range indices {
		if st, err = session.ToggleExclusion(*analyte, i); err != nil {
			return fmt.Errorf("exclude point %d: %w", i, err)
		}
	}
	a.printState(st)
	return nil
}

func (a *app) printState(st calibration.AnalyteState) {
	fmt.Fprintf(a.out, "%s  channel: %s  concentration: %s\n", st.Analyte, st.IntensityColumn, st.ConcentrationColumn)
	if st.Model != nil {
		m := st.Model
		fmt.Fprintf(a.out, "conc = %s × intensity + %s  R² = %s  RMSE = %s  points %d/%d  %s\n",
			formatFloat(m.Slope), formatFloat(m.Intercept), formatFloat(m.RSquared), formatFloat(m.RMSE),
			m.NPointsUsed, len(st.Points), calibration.Grade(m.RSquared))
	} else if st.FitError != "" {
		fmt.Fprintf(a.out, "no fit: %s\n", st.FitError)
	} else if st.Reason != internal.ReasonNone {
		fmt.Fprintf(a.out, "no fit: %s\n", st.Reason)
	}

	t := a.table("Index", "Label", "Concentration", "Intensity", "Included", "Predicted", "Residual", "% Error")
	for _, p := range st.Points {
		row := []string{strconv.Itoa(p.Index), p.Label, formatFloat(p.Concentration), formatFloat(p.Intensity), strconv.FormatBool(!p.Excluded), "", "", ""}
		if st.Model != nil && !p.Excluded {
			predicted := st.Model.Predict(p.Intensity)
			row[5] = formatFloat(predicted)
			row[6] = formatFloat(p.Concentration - predicted)
			if pe, ok := calibration.PercentError(p.Concentration, predicted); ok {
				row[7] = strconv.FormatFloat(pe, 'f', 2, 64)
			}
		}
		t.Append(row)
	}
	t.Render()
}

func runCompare(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("compare", flag.ExitOnError)
	run := fs.String("run", "", "run file")
	analyte := fs.String("analyte", "", "analyte element, e.g. Mg")
	_ = fs.Parse(args)
	if err := errors.Join(required("run", *run), required("analyte", *analyte)); err != nil {
		return err
	}

	session, _, _, err := a.calibrationSession(ctx, *run)
	if err != nil {
		return err
	}
	ranked, err := session.CompareChannels(*analyte)
	if err != nil {
		return err
	}
	t := a.table("", "Channel", "Wavelength", "View", "R²", "RMSE", "Points", "Quality")
	for _, c := range ranked {
		mark := ""
		if c.Recommended {
			mark = "*"
		}
		t.Append([]string{mark, c.Channel.Column, c.Wavelength, string(c.View), formatFloat(c.Model.RSquared),
			formatFloat(c.Model.RMSE), strconv.Itoa(c.PointsTotal), string(c.Quality)})
	}
	t.Render()
	return nil
}

func runReport(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	runPath := fs.String("run", "", "run file")
	exclude := fs.String("exclude", "", "exclusions per analyte, e.g. 'Mg:0,3;Ca:1'")
	outDir := fs.String("out", a.cfg.OutputDir, "output directory")
	sqliteOut := fs.String("sqlite", "", "also write an sqlite report")
	_ = fs.Parse(args)
	if err := required("run", *runPath); err != nil {
		return err
	}
	exclusions, err := parseExclusions(*exclude)
	if err != nil {
		return err
	}

	session, run, res, err := a.calibrationSession(ctx, *runPath)
	if err != nil {
		return err
	}
	analytes, err := session.Analytes()
	if err != nil {
		return err
	}
	for _, analyte := range analytes {
		if _, err := session.SelectAnalyte(analyte); err != nil {
			a.logger.WarnContext(ctx, "analyte skipped", "analyte", analyte, "error", err)
		}
	}
	for _, analyte := range sortedKeys(exclusions) {
		for _, i := range exclusions[analyte] {
			if _, err := session.ToggleExclusion(analyte, i); err != nil {
				return fmt.Errorf("exclude %s point %d: %w", analyte, i, err)
			}
		}
	}

	states := session.States()
	out := filepath.Join(*outDir, calibration.ReportFileName(run.Name))
	if err := calibration.ExportReport(run, states, out); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "calibration report for %d analytes written to %s\n", len(states), out)

	if *sqliteOut != "" {
		report := storage.Report{
			Runs:         []internal.RunSummary{res.Summary},
			Calibrations: storage.CalibrationsFromStates(run, states),
		}
		if err := storage.ExportReport(*sqliteOut, report); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "sqlite report written to %s\n", *sqliteOut)
	}
	return nil
}

func (a *app) importPreview(ctx context.Context, runPath string) (pipeline.ImportPreview, error) {
	cat, err := a.loadCatalog(ctx)
	if err != nil {
		return pipeline.ImportPreview{}, err
	}
	proc := pipeline.NewRunProcessor(a.cfg, cat, a.logger)
	res, err := proc.ProcessFile(ctx, runPath)
	if err != nil {
		return pipeline.ImportPreview{}, err
	}
	return pipeline.BuildImportPreview(res, cat.Headers, proc.Rules(), a.cfg.Discovery.MasterConcentrationKeys), nil
}

func runImportPreview(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("import:preview", flag.ExitOnError)
	run := fs.String("run", "", "run file")
	asJSON := fs.Bool("json", false, "print the preview as json")
	_ = fs.Parse(args)
	if err := required("run", *run); err != nil {
		return err
	}

	preview, err := a.importPreview(ctx, *run)
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(preview)
	}

	mt := a.table("Run column", "Master column", "Action")
	for _, m := range preview.Mappings {
		mt.Append([]string{m.RunColumn, m.MasterColumn, string(m.Action)})
	}
	mt.Render()
	ut := a.table("Sample", "Column", "Value", "Action")
	for _, u := range preview.Updates {
		for _, c := range u.Changes {
			ut.Append([]string{u.SampleID, c.Column, c.Value, string(c.Action)})
		}
	}
	ut.Render()
	fmt.Fprintf(a.out, "%d samples, %d new columns\n", len(preview.Updates), len(preview.NewColumns))
	return nil
}

func runImportApply(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("import:apply", flag.ExitOnError)
	run := fs.String("run", "", "run file")
	_ = fs.Parse(args)
	if err := required("run", *run); err != nil {
		return err
	}

	preview, err := a.importPreview(ctx, *run)
	if err != nil {
		return err
	}
	if len(preview.Updates) == 0 {
		return errors.New("no matched samples to import")
	}
	backup, err := pipeline.ApplyImport(a.cfg.CanonicalPath, a.cfg.CanonicalSheet, a.cfg.CanonicalIDColumn, preview, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "imported %d samples into %s (backup %s)\n", len(preview.Updates), a.cfg.CanonicalPath, backup)
	return nil
}

func runStats(_ context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	file := fs.String("file", "", "workbook file")
	sheet := fs.String("sheet", "", "sheet name (default: detected data sheet)")
	asJSON := fs.Bool("json", false, "print statistics as json")
	csvOut := fs.String("csv", "", "also write the sheet as csv to this file")
	_ = fs.Parse(args)
	if err := required("file", *file); err != nil {
		return err
	}

	wb, err := pipeline.ReadWorkbook(*file)
	if err != nil {
		return err
	}
	name := *sheet
	if name == "" {
		name = pipeline.DetectDataSheet(wb.SheetNames(), a.cfg.Discovery.DataSheetKeywords)
	}
	table, ok := wb.Sheet(name)
	if !ok {
		return fmt.Errorf("sheet %q not found in %s", name, filepath.Base(*file))
	}

	if *csvOut != "" {
		if err := writeTableCSV(table, *csvOut); err != nil {
			return err
		}
	}

	stats := pipeline.ComputeStats(table)
	if *asJSON {
		return json.NewEncoder(a.out).Encode(stats)
	}
	t := a.table("Column", "Count", "Mean", "Median", "Min", "Max")
	for _, s := range stats {
		t.Append([]string{s.Column, strconv.Itoa(s.Count), formatFloat(s.Mean), formatFloat(s.Median), formatFloat(s.Min), formatFloat(s.Max)})
	}
	t.Render()
	return nil
}

func writeTableCSV(table internal.Table, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := pipeline.ExportTableCSV(table, f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func runFetch(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	label := fs.String("label", a.cfg.IntakeLabel, "mailbox or label")
	maxMessages := fs.Int("max", a.cfg.IntakeFetchMax, "max messages")
	_ = fs.Parse(args)

	source, err := listener.NewSource(ctx, a.cfg)
	if err != nil {
		return err
	}
	res, err := connectors.NewFetchService(listener.InboxDir(a.cfg), source, a.logger).FetchAndStore(ctx, *label, *maxMessages)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "fetch done provider=%s fetched=%d attachments=%d stored=%d skipped=%d\n",
		a.cfg.IntakeProvider, res.Fetched, res.Attachments, res.Stored, res.Skipped)
	for _, p := range res.Paths {
		fmt.Fprintln(a.out, "  "+p)
	}
	return nil
}

func runServe(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", a.cfg.HTTPAddr, "listen address")
	_ = fs.Parse(args)

	cat, err := a.loadCatalog(ctx)
	if err != nil {
		return err
	}
	return server.New(a.cfg, pipeline.NewRunProcessor(a.cfg, cat, a.logger), a.logger).ListenAndServe(ctx, *addr)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
