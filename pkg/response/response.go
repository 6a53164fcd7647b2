package response

import (
	"encoding/json"
	"net/http"
)

// Response represents a standard API response structure
type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// PaginatedResponse represents a paginated API response
type PaginatedResponse struct {
	Status     string      `json:"status"`
	Message    string      `json:"message,omitempty"`
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

// Pagination contains pagination metadata
type Pagination struct {
	CurrentPage int64 `json:"current_page"`
	TotalPages  int64 `json:"total_pages"`
	TotalItems  int64 `json:"total_items"`
	PerPage     int64 `json:"per_page"`
}

// Success sends a successful JSON response carrying data
func Success(w http.ResponseWriter, data interface{}, message string) {
	writeEnvelope(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"data":    data,
		"message": message,
	})
}

// Message sends a success envelope with a message and no data field
func Message(w http.ResponseWriter, message string, statusCode int) {
	JSON(w, Response{Status: "success", Message: message}, statusCode)
}

// Error sends an error JSON response
func Error(w http.ResponseWriter, message string, statusCode int) {
	JSON(w, Response{
		Status:  "error",
		Message: message,
		Error:   message,
	}, statusCode)
}

// BadRequest sends a 400 Bad Request response
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, message, http.StatusBadRequest)
}

// Unauthorized sends a 401 Unauthorized response
func Unauthorized(w http.ResponseWriter, message string) {
	Error(w, message, http.StatusUnauthorized)
}

// Forbidden sends a 403 Forbidden response
func Forbidden(w http.ResponseWriter, message string) {
	Error(w, message, http.StatusForbidden)
}

// NotFound sends a 404 Not Found response
func NotFound(w http.ResponseWriter, message string) {
	Error(w, message, http.StatusNotFound)
}

// Conflict sends a 409 Conflict response
func Conflict(w http.ResponseWriter, message string) {
	Error(w, message, http.StatusConflict)
}

// TooManyRequests sends a 429 response
func TooManyRequests(w http.ResponseWriter, message string) {
	Error(w, message, http.StatusTooManyRequests)
}

// InternalServerError sends a 500 Internal Server Error response
func InternalServerError(w http.ResponseWriter, message string) {
	Error(w, message, http.StatusInternalServerError)
}

// Paginated sends a paginated response
func Paginated(w http.ResponseWriter, data interface{}, pagination Pagination) {
	JSON(w, PaginatedResponse{
		Status:     "success",
		Data:       data,
		Pagination: pagination,
	}, http.StatusOK)
}

// JSON sends a custom JSON response with specified status code
func JSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	// The status line is already written; an encode failure only means the
	// client went away.
	_ = json.NewEncoder(w).Encode(data)
}

// writeEnvelope keeps "data" even when nil so clients can tell a data
// response from a message-only one.
func writeEnvelope(w http.ResponseWriter, statusCode int, body map[string]interface{}) {
	if msg, _ := body["message"].(string); msg == "" {
		delete(body, "message")
	}
	JSON(w, body, statusCode)
}
