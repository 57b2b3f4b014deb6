// Package apiv2 implements the V2 response envelope and error taxonomy.
// Every JSON response leaving the gateway passes through this package:
// success payloads are wrapped in {success:true, data, meta} and errors are
// classified, assigned an error_id, and rendered as {success:false, error,
// error_code, meta}.
package apiv2

import (
	"time"
)

// APIVersion is stamped into every response's meta block.
const APIVersion = "v2"

// Meta is the envelope metadata common to all responses.
type Meta map[string]any

// Envelope is the uniform JSON wrapper for success responses.
type Envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
	Meta    Meta `json:"meta"`
}

// Pagination describes the page window of a paginated response.
type Pagination struct {
	Offset      int   `json:"offset"`
	Limit       int   `json:"limit"`
	Total       int64 `json:"total"`
	HasMore     bool  `json:"has_more"`
	CurrentPage int   `json:"current_page"`
	TotalPages  int   `json:"total_pages"`
}

// PaginatedEnvelope is the success envelope plus a pagination block.
type PaginatedEnvelope struct {
	Success    bool       `json:"success"`
	Data       any        `json:"data"`
	Pagination Pagination `json:"pagination"`
	Meta       Meta       `json:"meta"`
}

// Formatter builds V2 envelopes. The zero value is usable; Now is overridable
// for deterministic tests.
type Formatter struct {
	Now func() time.Time
}

func (f *Formatter) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now().UTC()
}

func (f *Formatter) baseMeta() Meta {
	return Meta{
		"api_version": APIVersion,
		"timestamp":   f.now().Format(time.RFC3339),
	}
}

// Success wraps data in the standard success envelope. Extra key/value pairs
// are merged into meta.
func (f *Formatter) Success(data any, extra ...Meta) Envelope {
	meta := f.baseMeta()
	for _, m := range extra {
		for k, v := range m {
			meta[k] = v
		}
	}
	return Envelope{Success: true, Data: data, Meta: meta}
}

// Collection wraps a slice with its length in meta.
func (f *Formatter) Collection(items any, count int) Envelope {
	return f.Success(items, Meta{"count": count})
}

// Paginated wraps a page of items. current_page is floor(offset/limit)+1;
// a non-positive limit is coerced to 1 so the invariant holds for any input.
func (f *Formatter) Paginated(items any, offset, limit int, total int64) PaginatedEnvelope {
	if limit <= 0 {
		limit = 1
	}
	if offset < 0 {
		offset = 0
	}
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return PaginatedEnvelope{
		Success: true,
		Data:    items,
		Pagination: Pagination{
			Offset:      offset,
			Limit:       limit,
			Total:       total,
			HasMore:     int64(offset+limit) < total,
			CurrentPage: offset/limit + 1,
			TotalPages:  totalPages,
		},
		Meta: f.baseMeta(),
	}
}

// Health wraps a health/readiness payload.
func (f *Formatter) Health(status string, checks any) Envelope {
	return f.Success(map[string]any{
		"status": status,
		"checks": checks,
	}, Meta{"response_type": "health"})
}

// Analytics wraps an analytics payload with its time range.
func (f *Formatter) Analytics(data any, timeRange string) Envelope {
	return f.Success(data, Meta{
		"response_type": "analytics",
		"time_range":    timeRange,
	})
}

// Task wraps a single task payload.
func (f *Formatter) Task(task any) Envelope {
	return f.Success(task, Meta{"response_type": "task"})
}

// ErrorEnvelope is the uniform JSON wrapper for error responses.
type ErrorEnvelope struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorCode int    `json:"error_code"`
	Meta      Meta   `json:"meta"`
}

// RequestContext carries the request-scoped fields stamped into error meta.
type RequestContext struct {
	RequestID string
	Path      string
	Method    string
}

// Error renders an *APIError into the error envelope. The error_id is
// generated here so every rendered error is correlatable in the logs.
func (f *Formatter) Error(apiErr *APIError, reqCtx RequestContext) ErrorEnvelope {
	meta := f.baseMeta()
	meta["error_type"] = apiErr.Type
	meta["error_id"] = apiErr.ErrorID
	if reqCtx.RequestID != "" {
		meta["request_id"] = reqCtx.RequestID
	}
	if reqCtx.Path != "" {
		meta["path"] = reqCtx.Path
	}
	if reqCtx.Method != "" {
		meta["method"] = reqCtx.Method
	}
	if apiErr.Field != "" {
		meta["field"] = apiErr.Field
	}
	return ErrorEnvelope{
		Success:   false,
		Error:     apiErr.Message,
		ErrorCode: apiErr.StatusCode,
		Meta:      meta,
	}
}
