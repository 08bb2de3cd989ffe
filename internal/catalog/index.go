package catalog

import (
	"errors"
	"fmt"

	"chemrecon/internal"
	"chemrecon/internal/util"
)

var ErrIDColumnMissing = errors.New("canonical id column not found")

// Catalog is the canonical sample register loaded once per session.
// Identifiers are normalized at load; Exact maps a normalized identifier to the
// position of the first record carrying it.
type Catalog struct {
	Sheet   string
	Headers []string

	records    []internal.CanonicalRecord
	normalized []string
	exact      map[string]int
}

func New(records []internal.CanonicalRecord) *Catalog {
	c := &Catalog{
		records:    make([]internal.CanonicalRecord, 0, len(records)),
		normalized: make([]string, 0, len(records)),
		exact:      map[string]int{},
	}
	for _, r := range records {
		c.add(r)
	}
	return c
}

// FromTable reads one canonical record per row with a non-empty idColumn value.
func FromTable(table internal.Table, idColumn string) (*Catalog, error) {
	if !table.HasColumn(idColumn) {
		return nil, fmt.Errorf("%w: %q in sheet %q", ErrIDColumnMissing, idColumn, table.Name)
	}
	c := New(nil)
	c.Sheet = table.Name
	c.Headers = append([]string(nil), table.Headers...)
	for _, row := range table.Rows {
		id := row.Value(idColumn)
		if id == "" {
			continue
		}
		c.add(internal.CanonicalRecord{ID: id, Position: len(c.records), Attributes: row})
	}
	return c, nil
}

func (c *Catalog) add(r internal.CanonicalRecord) {
	norm := util.NormalizeID(r.ID)
	if _, ok := c.exact[norm]; !ok {
		c.exact[norm] = len(c.records)
	}
	c.records = append(c.records, r)
	c.normalized = append(c.normalized, norm)
}

func (c *Catalog) Len() int { return len(c.records) }

func (c *Catalog) Record(i int) internal.CanonicalRecord { return c.records[i] }

// Normalized is NormalizeID of record i's identifier.
func (c *Catalog) Normalized(i int) string { return c.normalized[i] }

func (c *Catalog) Exact(normalizedID string) (int, bool) {
	i, ok := c.exact[normalizedID]
	return i, ok
}
