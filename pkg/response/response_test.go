package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorStatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := map[int]int{
		CodeParamError:        http.StatusBadRequest,
		CodeNotFound:          http.StatusNotFound,
		CodeForbidden:         http.StatusForbidden,
		CodeServerError:       http.StatusInternalServerError,
		CodeCapacityExhausted: http.StatusOK,
	}
	for code, status := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		Error(c, code, "x")

		assert.Equal(t, status, w.Code)
		var body Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, code, body.Code)
	}
}
