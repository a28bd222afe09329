package models

import (
	"encoding/json"
	"net/http"
)

// Problem — ответ об ошибке в стиле RFC 7807.
type Problem struct {
	Title    string         `json:"title"`
	Status   int            `json:"status"`
	Detail   string         `json:"detail,omitempty"`
	Instance string         `json:"instance,omitempty"` // URI запроса
	Extra    map[string]any `json:"extra,omitempty"`
}

func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string, extra map[string]any) {
	p := Problem{
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
		Extra:  extra,
	}
	if r != nil {
		p.Instance = r.URL.RequestURI()
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(p)
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// CheckResult — результат одной readiness-проверки.
type CheckResult struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}
