package apiv2

import (
	"testing"
	"time"
)

func TestSuccessEnvelope(t *testing.T) {
	f := &Formatter{}
	env := f.Success(map[string]string{"hello": "world"})

	if !env.Success {
		t.Error("success = false, want true")
	}
	if env.Meta["api_version"] != APIVersion {
		t.Errorf("api_version = %v, want %q", env.Meta["api_version"], APIVersion)
	}
	ts, ok := env.Meta["timestamp"].(string)
	if !ok {
		t.Fatalf("timestamp missing from meta: %v", env.Meta)
	}
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Errorf("timestamp %q is not RFC3339: %v", ts, err)
	}
}

func TestSuccessMergesExtraMeta(t *testing.T) {
	f := &Formatter{}
	env := f.Success(nil, Meta{"count": 3})
	if env.Meta["count"] != 3 {
		t.Errorf("count = %v, want 3", env.Meta["count"])
	}
	if env.Meta["api_version"] != APIVersion {
		t.Error("extra meta must not displace api_version")
	}
}

func TestPaginatedCurrentPage(t *testing.T) {
	f := &Formatter{}
	tests := []struct {
		offset, limit int
		total         int64
		wantPage      int
		wantPages     int
		wantHasMore   bool
	}{
		{0, 10, 95, 1, 10, true},
		{10, 10, 95, 2, 10, true},
		{90, 10, 95, 10, 10, false},
		{25, 10, 95, 3, 10, true}, // floor(25/10)+1 = 3
		{0, 10, 0, 1, 0, false},
		{0, 0, 5, 1, 5, true}, // limit coerced to 1
	}

	for _, tt := range tests {
		env := f.Paginated([]int{}, tt.offset, tt.limit, tt.total)
		p := env.Pagination
		if p.CurrentPage != tt.wantPage {
			t.Errorf("offset=%d limit=%d: current_page = %d, want %d",
				tt.offset, tt.limit, p.CurrentPage, tt.wantPage)
		}
		if p.TotalPages != tt.wantPages {
			t.Errorf("offset=%d limit=%d: total_pages = %d, want %d",
				tt.offset, tt.limit, p.TotalPages, tt.wantPages)
		}
		if p.HasMore != tt.wantHasMore {
			t.Errorf("offset=%d limit=%d: has_more = %v, want %v",
				tt.offset, tt.limit, p.HasMore, tt.wantHasMore)
		}
	}
}

func TestPaginatedInvariant(t *testing.T) {
	f := &Formatter{}
	// current_page == floor(offset/limit)+1 for arbitrary windows.
	for offset := 0; offset < 50; offset += 7 {
		for _, limit := range []int{1, 3, 10, 25} {
			env := f.Paginated(nil, offset, limit, 1000)
			want := offset/limit + 1
			if env.Pagination.CurrentPage != want {
				t.Fatalf("offset=%d limit=%d: current_page = %d, want %d",
					offset, limit, env.Pagination.CurrentPage, want)
			}
		}
	}
}

func TestDeterministicTimestamp(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := &Formatter{Now: func() time.Time { return fixed }}
	env := f.Success(nil)
	if env.Meta["timestamp"] != "2026-03-01T12:00:00Z" {
		t.Errorf("timestamp = %v", env.Meta["timestamp"])
	}
}

func TestErrorEnvelope(t *testing.T) {
	f := &Formatter{}
	apiErr := NewValidationError("email", "email is required")
	env := f.Error(apiErr, RequestContext{
		RequestID: "req-1",
		Path:      "/api/v2/users",
		Method:    "POST",
	})

	if env.Success {
		t.Error("success = true, want false")
	}
	if env.ErrorCode != 400 {
		t.Errorf("error_code = %d, want 400", env.ErrorCode)
	}
	if env.Meta["error_type"] != TypeValidation {
		t.Errorf("error_type = %v, want %q", env.Meta["error_type"], TypeValidation)
	}
	if env.Meta["field"] != "email" {
		t.Errorf("field = %v, want email", env.Meta["field"])
	}
	if env.Meta["request_id"] != "req-1" || env.Meta["path"] != "/api/v2/users" || env.Meta["method"] != "POST" {
		t.Errorf("request context not stamped: %v", env.Meta)
	}
	if env.Meta["error_id"] == "" {
		t.Error("error_id missing")
	}
}

func TestHealthAndAnalyticsVariants(t *testing.T) {
	f := &Formatter{}

	h := f.Health("ok", map[string]string{"db": "ok"})
	if h.Meta["response_type"] != "health" {
		t.Errorf("health response_type = %v", h.Meta["response_type"])
	}

	a := f.Analytics(map[string]int{"runs": 5}, "24h")
	if a.Meta["time_range"] != "24h" {
		t.Errorf("analytics time_range = %v", a.Meta["time_range"])
	}
}
