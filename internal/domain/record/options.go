package record

// ListOptions provides filtering options for listing records.
type ListOptions struct {
	Category *Category
	Limit    int
	Offset   int
}
