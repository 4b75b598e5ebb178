package links

import (
	"strings"

	"github.com/Lllllllleong/esgreportlinks/internal/models"
)

// Keyword is the lowercased first word of a company name, e.g. "biocon" for "Biocon Ltd".
func Keyword(companyName string) string {
	fields := strings.Fields(companyName)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}

// Partition splits uris into those that contain the company keyword
// (case-insensitively) and those that do not, preserving input order.
// With an empty keyword nothing matches.
func Partition(uris []string, companyName string) models.LinkPartition {
	keyword := Keyword(companyName)
	p := models.LinkPartition{
		Keyword:   keyword,
		Matched:   []string{},
		Unmatched: []string{},
	}
	for _, uri := range uris {
		if keyword != "" && strings.Contains(strings.ToLower(uri), keyword) {
			p.Matched = append(p.Matched, uri)
		} else {
			p.Unmatched = append(p.Unmatched, uri)
		}
	}
	return p
}
