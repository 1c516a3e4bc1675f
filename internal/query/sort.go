package query

// Field is a sortable record field
type Field string

const (
	FieldStars       Field = "stars"
	FieldLastUpdated Field = "lastUpdated"
	FieldName        Field = "name"
)

// Sort orders results by a single field
type Sort struct {
	Field      Field
	Descending bool
}

// DefaultSort is most recently updated first
var DefaultSort = Sort{Field: FieldLastUpdated, Descending: true}

// SortFor maps a sortBy key to a sort order; unknown keys get DefaultSort
func SortFor(key string) Sort {
	switch key {
	case "stars":
		return Sort{Field: FieldStars, Descending: true}
	case "updated":
		return Sort{Field: FieldLastUpdated, Descending: true}
	case "name":
		return Sort{Field: FieldName}
	default:
		return DefaultSort
	}
}
