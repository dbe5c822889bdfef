package domain

// DetailField is one scraped page field.
type DetailField string

const (
	FieldTitle       DetailField = "title"
	FieldDescription DetailField = "description"
	FieldUploadDate  DetailField = "uploadDate"
	FieldGenre       DetailField = "genre"
	FieldViews       DetailField = "views"
)

// AllDetailFields lists every known field in display order.
var AllDetailFields = []DetailField{
	FieldTitle,
	FieldDescription,
	FieldUploadDate,
	FieldGenre,
	FieldViews,
}

// ParseDetailField maps a field name to a known field.
func ParseDetailField(name string) (DetailField, bool) {
	for _, f := range AllDetailFields {
		if string(f) == name {
			return f, true
		}
	}
	return "", false
}

// Details holds scraped field values. A known field with no value on the page maps to "".
type Details map[DetailField]string

// Lookup returns the value for a field name; ok is false for unknown or missing fields.
func (d Details) Lookup(name string) (value string, ok bool) {
	f, known := ParseDetailField(name)
	if !known {
		return "", false
	}
	value, ok = d[f]
	return value, ok
}

// Select keeps only the requested fields. An empty request keeps every known field.
func (d Details) Select(fields []DetailField) Details {
	if len(fields) == 0 {
		fields = AllDetailFields
	}
	out := make(Details, len(fields))
	for _, f := range fields {
		out[f] = d[f]
	}
	return out
}

// ParseDetailFields splits names into known fields and unknown names.
func ParseDetailFields(names []string) (known []DetailField, unknown []string) {
	for _, n := range names {
		if f, ok := ParseDetailField(n); ok {
			known = append(known, f)
		} else {
			unknown = append(unknown, n)
		}
	}
	return known, unknown
}
