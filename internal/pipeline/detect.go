package pipeline

import (
	"strings"

	"chemrecon/internal"
	"chemrecon/internal/calibration"
	"chemrecon/internal/discovery"
)

// DetectDataSheet picks the sheet holding final sample results: the first sheet
// whose name contains a keyword, keywords tried in priority order, else the last sheet.
func DetectDataSheet(sheetNames []string, keywords []string) string {
	if len(sheetNames) == 0 {
		return ""
	}
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		for _, name := range sheetNames {
			if strings.Contains(strings.ToLower(name), kw) {
				return name
			}
		}
	}
	return sheetNames[len(sheetNames)-1]
}

// DetectStandardsSheetName finds a sheet named like a calibration sheet. A
// two-sheet workbook without such a name uses its first sheet.
func DetectStandardsSheetName(sheetNames []string, keywords []string) string {
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		for _, name := range sheetNames {
			if strings.Contains(strings.ToLower(name), kw) {
				return name
			}
		}
	}
	if len(sheetNames) == 2 {
		return sheetNames[0]
	}
	return ""
}

// FindStandards scans the sheets in order and returns the first one holding
// standards; if none does the data sheet is tried last.
func FindStandards(wb internal.Workbook, dataSheet string, rules discovery.RuleSet, labels []string) (calibration.Standards, string) {
	for _, t := range wb.Tables {
		if len(t.Rows) == 0 {
			continue
		}
		if s := calibration.ExtractStandards(t, rules, labels); s.Len() > 0 {
			return s, t.Name
		}
	}
	if t, ok := wb.Sheet(dataSheet); ok {
		return calibration.ExtractStandards(t, rules, labels), dataSheet
	}
	return calibration.Standards{}, ""
}
