package dedup

import (
	"strconv"
	"strings"

	"github.com/troeske/spiritswise-web-crawler-sub002/internal/discovery"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/hash/sha256"
)

// FingerprintFields are the identity fields, in hashing order.
var FingerprintFields = []string{
	discovery.FieldName,
	discovery.FieldBrand,
	discovery.FieldProductType,
	discovery.FieldAgeStatement,
	discovery.FieldVolumeML,
}

// FingerprintInput returns the canonical string that is hashed, e.g.
// "name=lagavulin 16|brand=lagavulin|product_type=whiskey|age_statement=16|volume_ml=700".
func FingerprintInput(p *discovery.Product) string {
	parts := make([]string, 0, len(FingerprintFields))
	for _, field := range FingerprintFields {
		parts = append(parts, field+"="+canonical(p, field))
	}
	return strings.Join(parts, "|")
}

// Fingerprint returns the SHA-256 hex digest of FingerprintInput.
func Fingerprint(p *discovery.Product) string {
	return sha256.Sum([]byte(FingerprintInput(p)))
}

func canonical(p *discovery.Product, field string) string {
	v, _ := p.FieldValue(field)
	switch val := v.(type) {
	case string:
		return strings.Join(strings.Fields(strings.ToLower(val)), " ")
	case float64:
		if val == 0 {
			return ""
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	}
	return ""
}
