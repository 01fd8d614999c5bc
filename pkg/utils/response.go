package utils

import (
	"net/http"

	"github.com/go-chi/render"
)

// ErrorResponse 统一的错误响应体
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// RespondJSON 发送JSON响应
func RespondJSON(w http.ResponseWriter, r *http.Request, status int, payload interface{}) {
	render.Status(r, status)
	render.JSON(w, r, payload)
}

// RespondError 发送错误响应
func RespondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	RespondJSON(w, r, status, ErrorResponse{Error: message})
}

// RespondValidation 发送字段级校验错误
func RespondValidation(w http.ResponseWriter, r *http.Request, fields map[string]string) {
	RespondJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: "validation failed", Fields: fields})
}

// DecodeJSON 解析请求体
func DecodeJSON(r *http.Request, dst interface{}) error {
	return render.DecodeJSON(r.Body, dst)
}
