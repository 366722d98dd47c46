package store

import (
	"strings"

	"github.com/couchcryptid/cyclone-impact-etl/internal/domain"
)

// ClassifyTable derives a table's granularity from its name prefix and, for
// Specific and Instance tables, its impact category from the first of
// Deaths, Injuries, Damage found in the name. Totals carry no category.
// ok is false for tables that take no part in the reconciliation.
func ClassifyTable(name string) (g domain.Granularity, c domain.Category, ok bool) {
	switch {
	case strings.HasPrefix(name, string(domain.Totals)):
		return domain.Totals, "", true
	case strings.HasPrefix(name, string(domain.SpecificArea)):
		g = domain.SpecificArea
	case strings.HasPrefix(name, string(domain.PerInstance)):
		g = domain.PerInstance
	default:
		return "", "", false
	}

	for _, cat := range domain.Categories {
		if strings.Contains(name, string(cat)) {
			return g, cat, true
		}
	}
	return "", "", false
}
