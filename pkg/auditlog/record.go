// Package auditlog decides whether a dispatch is audited, builds the redacted
// record and hands it to a Sink.
package auditlog

// Record constants.
const (
	Entity = "api"
	Type   = "api-request"
)

// Record is one audited dispatch.
type Record struct {
	ID          string `json:"id"`
	Entity      string `json:"entity"`
	EntityID    string `json:"entityId"`
	Type        string `json:"type"`
	UserCreated string `json:"userCreated,omitempty"`
	Log         Entry  `json:"log"`
}

// Entry is the body of a Record.
type Entry struct {
	API           EntryAPI      `json:"api"`
	Request       EntryRequest  `json:"request"`
	Response      EntryResponse `json:"response"`
	ExecutionTime float64       `json:"executionTime"`
}

// EntryAPI identifies the endpoint.
type EntryAPI struct {
	Endpoint   string `json:"endpoint"`
	HTTPMethod string `json:"httpMethod"`
}

// EntryRequest holds the logged request sections. A nil section was not logged.
type EntryRequest struct {
	Headers map[string]string `json:"headers,omitempty"`
	Data    any               `json:"data,omitempty"`
}

// EntryResponse holds the logged response.
type EntryResponse struct {
	Code    int               `json:"code"`
	Headers map[string]string `json:"headers"`
	Body    any               `json:"body,omitempty"`
}
