package models

import (
	"encoding/json"
	"time"
)

// Method tags used in APILog.RequestMethod besides plain HTTP verbs
const (
	MethodInternal = "INTERNAL"
	MethodWebhook  = "WEBHOOK"
)

// APILog is an append-only audit record of an external or internal operation
type APILog struct {
	ID             string          `json:"id"`
	Endpoint       string          `json:"endpoint"`
	RequestMethod  string          `json:"request_method"`
	RequestBody    json.RawMessage `json:"request_body"`
	ResponseBody   json.RawMessage `json:"response_body"`
	ResponseStatus *int            `json:"response_status"`
	ErrorMessage   *string         `json:"error_message"`
	CreatedAt      time.Time       `json:"created_at"`
}

// APILogFilter narrows an API log listing
type APILogFilter struct {
	Endpoint string
	Status   int
	Page     Page
}

// APILogPage is one page of API logs plus the total match count
type APILogPage struct {
	Items    []*APILog `json:"items"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
}
