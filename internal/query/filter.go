package query

// Clause is one constraint of a filter. Stores translate clauses with a type switch.
type Clause interface {
	clause()
}

// CategoryEquals restricts to an exact category
type CategoryEquals struct {
	Category string
}

// TopPickEquals restricts on the top pick flag
type TopPickEquals struct {
	TopPick bool
}

// TextSearch matches records whose name, tagline or category, or any stack
// element, contains Text case-insensitively. Text is literal, not a pattern.
type TextSearch struct {
	Text string
}

func (CategoryEquals) clause() {}
func (TopPickEquals) clause()  {}
func (TextSearch) clause()     {}

// Filter is the conjunction of its clauses. An empty filter matches everything.
type Filter struct {
	Clauses []Clause
}

// Empty reports whether the filter matches every record
func (f Filter) Empty() bool {
	return len(f.Clauses) == 0
}

// Builder accumulates filter clauses
type Builder struct {
	clauses []Clause
}

// Category adds a category equality clause
func (b *Builder) Category(category string) *Builder {
	b.clauses = append(b.clauses, CategoryEquals{Category: category})
	return b
}

// TopPick adds a top pick clause
func (b *Builder) TopPick(v bool) *Builder {
	b.clauses = append(b.clauses, TopPickEquals{TopPick: v})
	return b
}

// Search adds a text search clause
func (b *Builder) Search(text string) *Builder {
	b.clauses = append(b.clauses, TextSearch{Text: text})
	return b
}

// Build returns the accumulated filter
func (b *Builder) Build() Filter {
	clauses := make([]Clause, len(b.clauses))
	copy(clauses, b.clauses)
	return Filter{Clauses: clauses}
}
