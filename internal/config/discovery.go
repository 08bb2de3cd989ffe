package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Discovery holds the keyword lists used to recognise columns and sheets.
// Any list left empty in a rules file falls back to its default.
type Discovery struct {
	IdentifierKeywords      []string `yaml:"identifier_keywords"`
	ConcentrationKeywords   []string `yaml:"concentration_keywords"`
	IntensityKeywords       []string `yaml:"intensity_keywords"`
	Elements                []string `yaml:"elements"`
	DataSheetKeywords       []string `yaml:"data_sheet_keywords"`
	StandardsSheetKeywords  []string `yaml:"standards_sheet_keywords"`
	MasterConcentrationKeys []string `yaml:"master_concentration_keywords"`
}

func DefaultDiscovery() Discovery {
	return Discovery{
		IdentifierKeywords:      []string{"sample", "id", "name", "label"},
		ConcentrationKeywords:   []string{"ppm", "ppb", "conc"},
		IntensityKeywords:       []string{"inten", "cps"},
		Elements:                []string{"Na", "K", "Ca", "Mg", "Si", "Sr", "Al", "Ba", "Fe", "Li", "Mn", "S", "Cl", "P", "B", "Zn", "Cu", "Ni", "Cr", "Co"},
		DataSheetKeywords:       []string{"final", "samples", "data", "results"},
		StandardsSheetKeywords:  []string{"standard", "std", "calib", "cal"},
		MasterConcentrationKeys: []string{"ppm", "mmol", "concentration"},
	}
}

func LoadDiscovery(path string) (Discovery, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Discovery{}, fmt.Errorf("read discovery rules: %w", err)
	}
	var d Discovery
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return Discovery{}, fmt.Errorf("parse discovery rules %s: %w", path, err)
	}
	return d.withDefaults(), nil
}

func (d Discovery) withDefaults() Discovery {
	def := DefaultDiscovery()
	out := d.clone()
	if len(out.IdentifierKeywords) == 0 {
		out.IdentifierKeywords = def.IdentifierKeywords
	}
	if len(out.ConcentrationKeywords) == 0 {
		out.ConcentrationKeywords = def.ConcentrationKeywords
	}
	if len(out.IntensityKeywords) == 0 {
		out.IntensityKeywords = def.IntensityKeywords
	}
	if len(out.Elements) == 0 {
		out.Elements = def.Elements
	}
	if len(out.DataSheetKeywords) == 0 {
		out.DataSheetKeywords = def.DataSheetKeywords
	}
	if len(out.StandardsSheetKeywords) == 0 {
		out.StandardsSheetKeywords = def.StandardsSheetKeywords
	}
	if len(out.MasterConcentrationKeys) == 0 {
		out.MasterConcentrationKeys = def.MasterConcentrationKeys
	}
	return out
}

func (d Discovery) clone() Discovery {
	cp := func(in []string) []string {
		if in == nil {
			return nil
		}
		return append([]string(nil), in...)
	}
	return Discovery{
		IdentifierKeywords:      cp(d.IdentifierKeywords),
		ConcentrationKeywords:   cp(d.ConcentrationKeywords),
		IntensityKeywords:       cp(d.IntensityKeywords),
		Elements:                cp(d.Elements),
		DataSheetKeywords:       cp(d.DataSheetKeywords),
		StandardsSheetKeywords:  cp(d.StandardsSheetKeywords),
		MasterConcentrationKeys: cp(d.MasterConcentrationKeys),
	}
}
