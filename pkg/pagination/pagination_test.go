package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		query string
		want  Params
	}{
		{"", Params{Page: 1, Limit: 20, Offset: 0}},
		{"page=3&limit=10", Params{Page: 3, Limit: 10, Offset: 20}},
		{"page=2&per_page=5", Params{Page: 2, Limit: 5, Offset: 5}},
		{"page=-4&limit=0", Params{Page: 1, Limit: 20, Offset: 0}},
		{"page=x&limit=y", Params{Page: 1, Limit: 20, Offset: 0}},
		{"limit=1000", Params{Page: 1, Limit: MaxLimit, Offset: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest("GET", "/?"+tt.query, nil)
			assert.Equal(t, tt.want, Parse(c))
		})
	}
}

func TestPages(t *testing.T) {
	p := New(1, 20)
	assert.EqualValues(t, 0, p.Pages(0))
	assert.EqualValues(t, 1, p.Pages(20))
	assert.EqualValues(t, 3, p.Pages(41))
}
