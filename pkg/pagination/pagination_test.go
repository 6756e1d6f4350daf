package pagination

import (
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func newContext(target string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec)
}

func TestFromContext_Defaults(t *testing.T) {
	p := FromContext(newContext("/"))

	if p.Size != DefaultSize {
		t.Errorf("expected default size %d, got %d", DefaultSize, p.Size)
	}
	if p.Page != 0 {
		t.Errorf("expected default page 0, got %d", p.Page)
	}
	if len(p.Sort) != 0 {
		t.Errorf("expected no sort, got %v", p.Sort)
	}
}

func TestFromContext_CustomValues(t *testing.T) {
	p := FromContext(newContext("/?page=3&size=50&sort=name,desc"))

	if p.Size != 50 {
		t.Errorf("expected size 50, got %d", p.Size)
	}
	if p.Page != 3 {
		t.Errorf("expected page 3, got %d", p.Page)
	}
	if p.Offset() != 150 {
		t.Errorf("expected offset 150, got %d", p.Offset())
	}
	if len(p.Sort) != 1 || p.Sort[0].Field != "name" || !p.Sort[0].Desc {
		t.Errorf("unexpected sort: %+v", p.Sort)
	}
}

func TestFromContext_MaxSize(t *testing.T) {
	p := FromContext(newContext("/?size=500"))
	if p.Size != MaxSize {
		t.Errorf("expected size capped at %d, got %d", MaxSize, p.Size)
	}
}

func TestFromContext_NegativePage(t *testing.T) {
	p := FromContext(newContext("/?page=-5&size=abc"))
	if p.Page != 0 {
		t.Errorf("expected page 0 for negative input, got %d", p.Page)
	}
	if p.Size != DefaultSize {
		t.Errorf("expected default size for garbage input, got %d", p.Size)
	}
}

func TestFromContext_HugePageDoesNotWrap(t *testing.T) {
	tests := []struct {
		name   string
		target string
		page   int
	}{
		{"just over max", "/?page=21474837&size=20", MaxPage},
		{"wraps int64 when multiplied", "/?page=922337203685477581&size=20", MaxPage},
		{"beyond int64", "/?page=99999999999999999999&size=20", MaxPage},
		{"at max", "/?page=21474836&size=100", MaxPage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := FromContext(newContext(tt.target))
			if p.Page != tt.page {
				t.Errorf("expected page %d, got %d", tt.page, p.Page)
			}
			if p.Offset() < 0 || p.Offset() > math.MaxInt32 {
				t.Errorf("offset out of range: %d", p.Offset())
			}
			if p.Offset() != p.Page*p.Size {
				t.Errorf("expected offset %d, got %d", p.Page*p.Size, p.Offset())
			}
		})
	}
}

func TestOffset_ClampsUnvalidatedParams(t *testing.T) {
	p := Params{Page: math.MaxInt64 / 10, Size: 20}
	if got, want := p.Offset(), MaxPage*20; got != want {
		t.Errorf("expected offset %d, got %d", want, got)
	}
	if got := p.SQL(); got != fmt.Sprintf("LIMIT 20 OFFSET %d", MaxPage*20) {
		t.Errorf("unexpected SQL %q", got)
	}
}

func TestParseSort(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   []Order
	}{
		{"empty", nil, nil},
		{"field only", []string{"code"}, []Order{{Field: "code"}}},
		{"explicit asc", []string{"code,asc"}, []Order{{Field: "code"}}},
		{"desc any case", []string{"name,DESC"}, []Order{{Field: "name", Desc: true}}},
		{"repeated params", []string{"name,desc", "code"}, []Order{{Field: "name", Desc: true}, {Field: "code"}}},
		{"semicolon list", []string{"name,desc; code"}, []Order{{Field: "name", Desc: true}, {Field: "code"}}},
		{"blank field dropped", []string{",desc"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseSort(tt.values)
			if len(got) != len(tt.want) {
				t.Fatalf("ParseSort() = %+v, want %+v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ParseSort()[%d] = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSQL(t *testing.T) {
	p := Params{Page: 2, Size: 20}
	expected := "LIMIT 20 OFFSET 40"
	if p.SQL() != expected {
		t.Errorf("expected %q, got %q", expected, p.SQL())
	}
}

func TestOrderBy(t *testing.T) {
	columns := map[string]string{"code": "code", "name": "name"}

	tests := []struct {
		name string
		sort []Order
		want string
	}{
		{"fallback only", nil, "ORDER BY code ASC"},
		{"known field", []Order{{Field: "name", Desc: true}}, "ORDER BY name DESC, code ASC"},
		{"fallback requested", []Order{{Field: "code", Desc: true}}, "ORDER BY code DESC"},
		{"unknown field dropped", []Order{{Field: "name; DROP TABLE x"}}, "ORDER BY code ASC"},
		{"duplicate collapsed", []Order{{Field: "name"}, {Field: "name", Desc: true}}, "ORDER BY name ASC, code ASC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Params{Size: 10, Sort: tt.sort}
			if got := p.OrderBy(columns, "code"); got != tt.want {
				t.Errorf("OrderBy() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewResponse(t *testing.T) {
	data := []string{"a", "b", "c"}
	r := NewResponse(data, 10, Params{Page: 0, Size: 3})

	if r.Total != 10 {
		t.Errorf("expected total 10, got %d", r.Total)
	}
	if r.TotalPages != 4 {
		t.Errorf("expected 4 total pages, got %d", r.TotalPages)
	}
	if !r.HasMore {
		t.Error("expected has_more to be true when more pages remain")
	}

	r2 := NewResponse(data, 3, Params{Page: 0, Size: 3})
	if r2.HasMore {
		t.Error("expected has_more to be false on the last page")
	}
}

func TestNewResponse_NilItems(t *testing.T) {
	r := NewResponse[string](nil, 0, Params{Size: 20})
	if r.Items == nil {
		t.Error("expected empty slice, not nil, so JSON renders []")
	}
	if r.TotalPages != 0 {
		t.Errorf("expected 0 pages, got %d", r.TotalPages)
	}
}

func TestParams_HasNext(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		total  int
		want   bool
	}{
		{"more results", Params{Page: 0, Size: 10}, 25, true},
		{"last partial page", Params{Page: 2, Size: 10}, 25, false},
		{"past end", Params{Page: 5, Size: 10}, 25, false},
		{"no results", Params{Page: 0, Size: 10}, 0, false},
		{"exact end", Params{Page: 1, Size: 10}, 20, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.params.HasNext(tt.total); got != tt.want {
				t.Errorf("HasNext() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParams_HasPrevious(t *testing.T) {
	if (Params{Page: 0, Size: 10}).HasPrevious() {
		t.Error("first page should not have a previous page")
	}
	if !(Params{Page: 1, Size: 10}).HasPrevious() {
		t.Error("second page should have a previous page")
	}
}
