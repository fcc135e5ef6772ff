// Package events defines the dispatch lifecycle events and their publishers.
package events

// DispatchEndedEvent is emitted once per dispatch, after the response is final.
type DispatchEndedEvent struct {
	Endpoint      string  `json:"endpoint"`
	Method        string  `json:"method"`
	Code          int     `json:"code"`
	LogID         string  `json:"logId"`
	ClientCode    string  `json:"clientCode,omitempty"`
	ExecutionTime float64 `json:"executionTime"`
	Timestamp     string  `json:"timestamp"`
}

// Entity returns the first segment of the endpoint.
func (e *DispatchEndedEvent) Entity() string {
	for i := 0; i < len(e.Endpoint); i++ {
		if e.Endpoint[i] == '/' {
			return e.Endpoint[:i]
		}
	}
	return e.Endpoint
}
