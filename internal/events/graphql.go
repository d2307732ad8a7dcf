package events

import "time"

// QueryStart is emitted before a query is handed to an executor.
type QueryStart struct {
	OperationName string
	OperationType string
}

// QueryFinish is emitted once the executor delivered a completion.
// Err is set for transport failures; Errors holds GraphQL errors otherwise.
type QueryFinish struct {
	OperationName string
	OperationType string
	HasData       bool
	Errors        []error
	Err           error
	Duration      time.Duration
}
