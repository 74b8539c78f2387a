package http

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"insights/internal/core"
)

func TestParseFilterParams(t *testing.T) {
	tests := []struct {
		name    string
		query   url.Values
		want    core.FilterSet
		wantErr bool
	}{
		{
			name:  "all values provided",
			query: url.Values{"state": {"Karnataka"}, "year": {"2021"}, "quarter": {"3"}},
			want:  core.FilterSet{State: "Karnataka", Year: 2021, Quarter: 3},
		},
		{
			name:  "empty query leaves filters unset",
			query: url.Values{},
			want:  core.FilterSet{},
		},
		{
			name:  "blank values are unset",
			query: url.Values{"state": {"  "}, "year": {""}, "quarter": {""}},
			want:  core.FilterSet{},
		},
		{
			name:  "state is trimmed",
			query: url.Values{"state": {"  Tamil Nadu "}},
			want:  core.FilterSet{State: "Tamil Nadu"},
		},
		{
			name:    "year outside enumeration",
			query:   url.Values{"year": {"2030"}},
			wantErr: true,
		},
		{
			name:    "quarter not a number",
			query:   url.Values{"quarter": {"Q1"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFilterParams(tt.query)
			if tt.wantErr {
				if !core.IsInputError(err) {
					t.Fatalf("expected InputError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFilterQueryRoundTrip(t *testing.T) {
	f := core.FilterSet{State: "Andaman & Nicobar", Year: 2022}
	q := FilterQuery(f)
	if strings.Contains(q, "quarter") {
		t.Errorf("unset quarter rendered: %q", q)
	}

	values, err := url.ParseQuery(q)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got, err := ParseFilterParams(values)
	if err != nil {
		t.Fatalf("ParseFilterParams: %v", err)
	}
	if got != f {
		t.Errorf("round trip = %+v, want %+v", got, f)
	}

	if FilterQuery(core.FilterSet{}) != "" {
		t.Error("empty filters should render an empty query")
	}
}

func TestReportName(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/reports/top_pincodes", nil)
	req = mux.SetURLVars(req, map[string]string{"name": " top_pincodes "})
	if got := ReportName(req); got != "top_pincodes" {
		t.Errorf("ReportName = %q", got)
	}
}

func TestRequestBodyParser_JSON(t *testing.T) {
	body := `{"report": "brand_loyalty", "state": "Goa", "year": 2022, "quarter": "4"}`
	req := httptest.NewRequest(http.MethodPost, "/exports", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	parser := NewRequestBodyParser(req)
	if err := parser.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if !parser.IsJSON() {
		t.Error("Expected IsJSON() to be true")
	}
	if name := parser.Get("report"); name != "brand_loyalty" {
		t.Errorf("Get('report') = %q", name)
	}
	if year := parser.Get("year"); year != "2022" {
		t.Errorf("Get('year') = %q, want '2022'", year)
	}

	f, err := parser.Filters()
	if err != nil {
		t.Fatalf("Filters() error = %v", err)
	}
	want := core.FilterSet{State: "Goa", Year: 2022, Quarter: 4}
	if f != want {
		t.Errorf("Filters() = %+v, want %+v", f, want)
	}
}

func TestRequestBodyParser_FormData(t *testing.T) {
	body := "report=top_states_by_volume&state=Tamil+Nadu&year=2021"
	req := httptest.NewRequest(http.MethodPost, "/exports", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	parser := NewRequestBodyParser(req)
	if err := parser.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if parser.IsJSON() {
		t.Error("Expected IsJSON() to be false for form data")
	}
	if state := parser.Get("state"); state != "Tamil Nadu" {
		t.Errorf("Get('state') = %q, want 'Tamil Nadu'", state)
	}
	if q := parser.Get("quarter"); q != "" {
		t.Errorf("Get('quarter') = %q, want empty", q)
	}
}

func TestRequestBodyParser_EmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/exports", strings.NewReader(""))

	parser := NewRequestBodyParser(req)
	if err := parser.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if val := parser.Get("report"); val != "" {
		t.Errorf("Get('report') = %q, want empty string", val)
	}
}

func TestRequestBodyParser_BadJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/exports", strings.NewReader(`{"report":`))

	if err := NewRequestBodyParser(req).Parse(); err == nil {
		t.Error("expected error for truncated JSON")
	}
}

func TestWantsJSON(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    bool
	}{
		{"htmx request", map[string]string{"HX-Request": "true", "Accept": "application/json"}, false},
		{"accept json", map[string]string{"Accept": "application/json"}, true},
		{"json body", map[string]string{"Content-Type": "application/json"}, true},
		{"browser form", map[string]string{"Accept": "text/html"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/exports", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := wantsJSON(req); got != tt.want {
				t.Errorf("wantsJSON = %v, want %v", got, tt.want)
			}
		})
	}
}
