package discovery

import (
	"fmt"
	"strconv"
	"strings"
)

// Field names used by observations, conflict detection and fingerprinting.
const (
	FieldName              = "name"
	FieldBrand             = "brand"
	FieldProductType       = "product_type"
	FieldABV               = "abv"
	FieldAgeStatement      = "age_statement"
	FieldVolumeML          = "volume_ml"
	FieldRegion            = "region"
	FieldCountry           = "country"
	FieldDescription       = "description"
	FieldNoseDescription   = "nose_description"
	FieldPrimaryAromas     = "primary_aromas"
	FieldPalateDescription = "palate_description"
	FieldInitialTaste      = "initial_taste"
	FieldMidPalate         = "mid_palate_evolution"
	FieldMouthfeel         = "mouthfeel"
	FieldPalateFlavors     = "palate_flavors"
	FieldFinishDescription = "finish_description"
	FieldFinalNotes        = "final_notes"
	FieldFinishFlavors     = "finish_flavors"
	FieldFinishLength      = "finish_length"
)

// FieldKind is the comparison class of a product field.
type FieldKind int

// Field kinds.
const (
	KindUnknown FieldKind = iota
	KindText
	KindNumber
	KindList
)

var fieldKinds = map[string]FieldKind{
	FieldName:              KindText,
	FieldBrand:             KindText,
	FieldProductType:       KindText,
	FieldABV:               KindNumber,
	FieldAgeStatement:      KindNumber,
	FieldVolumeML:          KindNumber,
	FieldRegion:            KindText,
	FieldCountry:           KindText,
	FieldDescription:       KindText,
	FieldNoseDescription:   KindText,
	FieldPrimaryAromas:     KindList,
	FieldPalateDescription: KindText,
	FieldInitialTaste:      KindText,
	FieldMidPalate:         KindText,
	FieldMouthfeel:         KindText,
	FieldPalateFlavors:     KindList,
	FieldFinishDescription: KindText,
	FieldFinalNotes:        KindText,
	FieldFinishFlavors:     KindList,
	FieldFinishLength:      KindNumber,
}

// KindOf returns the kind of a known product field.
func KindOf(field string) (FieldKind, bool) {
	k, ok := fieldKinds[field]
	return k, ok
}

// FieldValue returns the current value of a named field. Numbers are returned
// as float64, text as string and lists as []string. Unknown fields report false.
func (p *Product) FieldValue(field string) (any, bool) {
	switch field {
	case FieldName:
		return p.Name, true
	case FieldBrand:
		return p.Brand, true
	case FieldProductType:
		return p.ProductType, true
	case FieldABV:
		return p.ABV, true
	case FieldAgeStatement:
		return float64(p.AgeStatement), true
	case FieldVolumeML:
		return float64(p.VolumeML), true
	case FieldRegion:
		return p.Region, true
	case FieldCountry:
		return p.Country, true
	case FieldDescription:
		return p.Description, true
	case FieldNoseDescription:
		return p.NoseDescription, true
	case FieldPrimaryAromas:
		return p.PrimaryAromas, true
	case FieldPalateDescription:
		return p.PalateDescription, true
	case FieldInitialTaste:
		return p.InitialTaste, true
	case FieldMidPalate:
		return p.MidPalate, true
	case FieldMouthfeel:
		return p.Mouthfeel, true
	case FieldPalateFlavors:
		return p.PalateFlavors, true
	case FieldFinishDescription:
		return p.FinishDescription, true
	case FieldFinalNotes:
		return p.FinalNotes, true
	case FieldFinishFlavors:
		return p.FinishFlavors, true
	case FieldFinishLength:
		return float64(p.FinishLength), true
	default:
		return nil, false
	}
}

// IsEmpty reports whether a field holds its zero value.
func (p *Product) IsEmpty(field string) bool {
	v, ok := p.FieldValue(field)
	if !ok {
		return true
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val) == ""
	case float64:
		return val == 0
	case []string:
		return len(val) == 0
	}
	return true
}

// SetField assigns an observed value to a field, coercing it to the field's type.
func (p *Product) SetField(field string, value any) error {
	kind, ok := KindOf(field)
	if !ok {
		return fmt.Errorf("unknown field %q", field)
	}
	switch kind {
	case KindNumber:
		n, ok := ToFloat(value)
		if !ok {
			return fmt.Errorf("field %s: cannot use %T as number", field, value)
		}
		switch field {
		case FieldABV:
			p.ABV = n
		case FieldAgeStatement:
			p.AgeStatement = int(n)
		case FieldVolumeML:
			p.VolumeML = int(n)
		case FieldFinishLength:
			p.FinishLength = int(n)
		}
	case KindList:
		list, ok := ToStrings(value)
		if !ok {
			return fmt.Errorf("field %s: cannot use %T as list", field, value)
		}
		switch field {
		case FieldPrimaryAromas:
			p.PrimaryAromas = list
		case FieldPalateFlavors:
			p.PalateFlavors = list
		case FieldFinishFlavors:
			p.FinishFlavors = list
		}
	case KindText:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("field %s: cannot use %T as text", field, value)
		}
		p.setText(field, s)
	}
	return nil
}

func (p *Product) setText(field, s string) {
	switch field {
	case FieldName:
		p.Name = s
	case FieldBrand:
		p.Brand = s
	case FieldProductType:
		p.ProductType = s
	case FieldRegion:
		p.Region = s
	case FieldCountry:
		p.Country = s
	case FieldDescription:
		p.Description = s
	case FieldNoseDescription:
		p.NoseDescription = s
	case FieldPalateDescription:
		p.PalateDescription = s
	case FieldInitialTaste:
		p.InitialTaste = s
	case FieldMidPalate:
		p.MidPalate = s
	case FieldMouthfeel:
		p.Mouthfeel = s
	case FieldFinishDescription:
		p.FinishDescription = s
	case FieldFinalNotes:
		p.FinalNotes = s
	}
}

// ToFloat coerces JSON-ish numeric values, including numeric strings such as "40%".
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(n), "%"))
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// ToStrings coerces a list value to []string.
func ToStrings(v any) ([]string, bool) {
	switch l := v.(type) {
	case []string:
		return l, true
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}
