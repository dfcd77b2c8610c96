package domain

// Record is one serialized entity: attribute name to JSON-typed value.
// To-one relationships appear flattened as foreign-key id fields.
type Record map[string]any

// DataResponse is the envelope for operations that return entity data.
type DataResponse struct {
	Success bool     `json:"success"`
	Data    []Record `json:"data"`
	Total   int      `json:"total"`

	// Status is the HTTP status the resource layer should write.
	// Not part of the wire envelope.
	Status int `json:"-"`
}

// SimpleResponse is the acknowledgement envelope for operations without a
// data payload.
type SimpleResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`

	Status int `json:"-"`
}

// NewDataResponse creates a successful data response with the given status.
func NewDataResponse(status int, data []Record) *DataResponse {
	if data == nil {
		data = []Record{}
	}
	return &DataResponse{Success: true, Data: data, Total: len(data), Status: status}
}

// NewSimpleResponse creates a successful acknowledgement.
func NewSimpleResponse(status int) *SimpleResponse {
	return &SimpleResponse{Success: true, Status: status}
}
