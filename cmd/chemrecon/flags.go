package main

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// parseIndices reads "0,3" into point indices. Repeated indices are kept once
// so each one toggles a single time.
func parseIndices(s string) ([]int, error) {
	out := []int{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid point index %q", part)
		}
		out = appendUnique(out, n)
	}
	return out, nil
}

// parseExclusions reads "Mg:0,3;Ca:1" into per-analyte point indices.
func parseExclusions(s string) (map[string][]int, error) {
	out := map[string][]int{}
	for _, group := range strings.Split(s, ";") {
		group = strings.TrimSpace(group)
		if group == "" {
			continue
		}
		analyte, list, ok := strings.Cut(group, ":")
		analyte = strings.TrimSpace(analyte)
		if !ok || analyte == "" {
			return nil, fmt.Errorf("invalid exclusion %q, want <analyte>:<i,j>", group)
		}
		idx, err := parseIndices(list)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", analyte, err)
		}
		out[analyte] = appendUnique(out[analyte], idx...)
	}
	return out, nil
}

func appendUnique(dst []int, values ...int) []int {
	for _, v := range values {
		if !slices.Contains(dst, v) {
			dst = append(dst, v)
		}
	}
	return dst
}

func sortedKeys(m map[string][]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func required(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("--%s is required", name)
	}
	return nil
}
