package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRequestUserID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name string
		set  func(c *gin.Context)
		want uint
	}{
		{
			name: "authenticated request",
			set: func(c *gin.Context) {
				c.Set("user_id", uint(42))
			},
			want: 42,
		},
		{
			name: "unauthenticated request",
			set:  func(c *gin.Context) {},
			want: 0,
		},
		{
			name: "unexpected value type",
			set: func(c *gin.Context) {
				c.Set("user_id", "42")
			},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			tt.set(c)
			assert.Equal(t, tt.want, requestUserID(c))
		})
	}
}
