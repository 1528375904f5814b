package response

import (
	"encoding/json"
	"net/http"
)

// Response is the envelope every endpoint writes. Failures always carry the
// human-readable message in Error; machine-readable context goes in Details.
// When Data is a JSON object its fields are also promoted to the top level.
type Response[T any] struct {
	Status  int    `json:"status"`
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Details any    `json:"details,omitempty"`
}

var envelopeKeys = map[string]bool{
	"status":  true,
	"success": true,
	"message": true,
	"data":    true,
	"error":   true,
	"details": true,
}

func JSONCreatedResponse(w http.ResponseWriter, data any, message string) error {
	if message == "" {
		message = "Request successful"
	}

	response := &Response[any]{
		Status:  http.StatusCreated,
		Success: true,
		Message: message,
		Data:    data,
	}

	return JSONWithHeaders(w, response, nil)
}

func JSONOkResponse(w http.ResponseWriter, data any, message string, headers http.Header) error {
	if message == "" {
		message = "Request successful"
	}

	response := &Response[any]{
		Status:  http.StatusOK,
		Success: true,
		Message: message,
		Data:    data,
	}

	return JSONWithHeaders(w, response, headers)
}

func JSONErrorResponse(w http.ResponseWriter, details any, message string, status int, headers http.Header) error {
	if message == "" {
		message = "Request failed"
	}
	if status == 0 {
		status = http.StatusInternalServerError
	}
	response := &Response[any]{
		Status:  status,
		Success: false,
		Message: message,
		Error:   message,
		Details: details,
	}

	return JSONWithHeaders(w, response, headers)
}

func JSON[T any](w http.ResponseWriter, response *Response[T]) error {
	return JSONWithHeaders(w, response, nil)
}

func JSONWithHeaders[T any](w http.ResponseWriter, response *Response[T], headers http.Header) error {
	js, err := flatten(response)
	if err != nil {
		return err
	}

	js = append(js, '\n')

	for key, value := range headers {
		w.Header()[key] = value
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(response.Status)

	w.Write(js)

	return nil
}

// flatten encodes response and copies the fields of an object payload next to
// the envelope keys, which always win.
func flatten(response any) ([]byte, error) {
	js, err := json.Marshal(response)
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	err = json.Unmarshal(js, &fields)
	if err != nil {
		return nil, err
	}

	var payload map[string]json.RawMessage
	if data, ok := fields["data"]; ok && json.Unmarshal(data, &payload) == nil {
		for key, value := range payload {
			if !envelopeKeys[key] {
				fields[key] = value
			}
		}
	}

	return json.MarshalIndent(fields, "", "\t")
}
