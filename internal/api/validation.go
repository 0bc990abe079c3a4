package api

import (
	"net/http"
	"strings"
)

// FieldError describes one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects field errors for a request.
type ValidationError struct {
	Fields []FieldError
}

func (v *ValidationError) Add(field, message string) {
	v.Fields = append(v.Fields, FieldError{Field: field, Message: message})
}

func (v *ValidationError) Failed() bool { return len(v.Fields) > 0 }

func (v *ValidationError) Error() string {
	parts := make([]string, 0, len(v.Fields))
	for _, f := range v.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "invalid request data: " + strings.Join(parts, "; ")
}

type validationResponse struct {
	Message string       `json:"message"`
	Errors  []FieldError `json:"errors"`
}

func invalidBody() *ValidationError {
	v := &ValidationError{}
	v.Add("body", "Request body must be a JSON object")
	return v
}

func writeValidation(w http.ResponseWriter, v *ValidationError) {
	fields := v.Fields
	if fields == nil {
		fields = []FieldError{}
	}
	writeJSON(w, http.StatusBadRequest, validationResponse{Message: "Invalid request data", Errors: fields})
}
