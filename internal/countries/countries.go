// Package countries loads country metadata from the countries.csv table.
package countries

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// CSV column names.
const (
	ColumnISO2   = "Alpha_2_Code"
	ColumnISO3   = "Alpha_3_Code"
	ColumnName   = "English_Short_Name"
	ColumnRegion = "OCHA_Region"
)

// Country is one row of the table.
type Country struct {
	Name       string `json:"name"`
	ISO2       string `json:"iso2"`
	ISO3       string `json:"iso3"`
	OCHARegion string `json:"ocha_region,omitempty"`
}

// Global describes the worldwide dataset in the catalog.
var Global = Country{Name: "Global", ISO2: "GL", ISO3: "GLB"}

// Table is the loaded country list ordered by ISO2.
type Table struct {
	Countries []Country
	// Skipped counts rows dropped for missing ISO codes.
	Skipped int
}

// Load reads path keeping only countries of region. An empty region, "*" or
// "all" keeps every region.
func Load(path, region string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{}, fmt.Errorf("open countries table: %w", err)
	}
	defer f.Close()

	t, err := Read(f, region)
	if err != nil {
		return Table{}, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Read parses a countries table. A UTF-8 byte order mark is tolerated and
// header names are trimmed. A later row with the same ISO2 code replaces an earlier one.
func Read(r io.Reader, region string) (Table, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	cr := csv.NewReader(decoded)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return Table{}, nil
	}
	if err != nil {
		return Table{}, fmt.Errorf("read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(h)] = i
	}
	column := func(row []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	region = normalizeRegion(region)

	var t Table
	byISO2 := make(map[string]int)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("read row: %w", err)
		}

		c := Country{
			ISO2:       column(row, ColumnISO2),
			ISO3:       column(row, ColumnISO3),
			Name:       column(row, ColumnName),
			OCHARegion: column(row, ColumnRegion),
		}

		if region != "" && strings.ToLower(c.OCHARegion) != region {
			continue
		}
		if c.ISO2 == "" || c.ISO3 == "" {
			t.Skipped++
			continue
		}
		if c.Name == "" {
			c.Name = c.ISO2
		}

		if i, ok := byISO2[c.ISO2]; ok {
			t.Countries[i] = c
			continue
		}
		byISO2[c.ISO2] = len(t.Countries)
		t.Countries = append(t.Countries, c)
	}

	slices.SortFunc(t.Countries, func(a, b Country) int {
		return strings.Compare(a.ISO2, b.ISO2)
	})
	return t, nil
}

func normalizeRegion(region string) string {
	region = strings.ToLower(strings.TrimSpace(region))
	if region == "*" || region == "all" {
		return ""
	}
	return region
}

// Filter keeps countries whose ISO2 or ISO3 code is in codes, compared
// case-insensitively. It also returns the requested codes that matched
// nothing. Empty codes keep every country.
func Filter(countries []Country, codes []string) ([]Country, []string) {
	if len(codes) == 0 {
		return countries, nil
	}

	wanted := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		wanted[strings.ToUpper(strings.TrimSpace(c))] = struct{}{}
	}

	var selected []Country
	matched := make(map[string]struct{})
	for _, c := range countries {
		iso2 := strings.ToUpper(c.ISO2)
		iso3 := strings.ToUpper(c.ISO3)

		_, ok2 := wanted[iso2]
		_, ok3 := wanted[iso3]
		if !ok2 && !ok3 {
			continue
		}

		selected = append(selected, c)
		matched[iso2] = struct{}{}
		matched[iso3] = struct{}{}
	}

	var missing []string
	for _, c := range codes {
		code := strings.ToUpper(strings.TrimSpace(c))
		if _, ok := matched[code]; !ok {
			missing = append(missing, code)
		}
	}

	return selected, missing
}

// ISO3ByISO2 maps upper-case ISO2 codes to ISO3 codes.
func ISO3ByISO2(countries []Country) map[string]string {
	out := make(map[string]string, len(countries))
	for _, c := range countries {
		out[strings.ToUpper(c.ISO2)] = strings.ToUpper(c.ISO3)
	}
	return out
}
