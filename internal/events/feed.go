package events

// PageApplied is emitted after a page was appended to a pagination session.
type PageApplied struct {
	OperationName string
	Items         int
	Total         int
	HasMore       bool
}

// RecordLoaded is emitted after a detail record replaced the held one.
type RecordLoaded struct {
	OperationName string
	ID            string
}
