package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		errType ErrorType
		status  int
	}{
		{ErrTypeUnauthenticated, http.StatusUnauthorized},
		{ErrTypeQuotaExceeded, http.StatusTooManyRequests},
		{ErrTypeRateLimited, http.StatusTooManyRequests},
		{ErrTypeInvalidToken, http.StatusBadRequest},
		{ErrTypeValidation, http.StatusBadRequest},
		{ErrTypeConflict, http.StatusConflict},
		{ErrTypeNotFound, http.StatusNotFound},
		{ErrTypeInternal, http.StatusInternalServerError},
		{ErrTypeConfig, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(string(tc.errType), func(t *testing.T) {
			err := &AppError{Type: tc.errType, Message: "x"}
			assert.Equal(t, tc.status, err.HTTPStatus())
		})
	}
}

func TestQuotaExceededError(t *testing.T) {
	err := QuotaExceededError("pro", 100)
	assert.Equal(t, ErrTypeQuotaExceeded, err.Type)
	assert.Equal(t, "pro", err.Context["plan"])
	assert.Equal(t, 100, err.Context["quota"])
}

func TestErrorString(t *testing.T) {
	err := InternalError("something broke", fmt.Errorf("root cause"))
	assert.Contains(t, err.Error(), "internal")
	assert.Contains(t, err.Error(), "something broke")
	assert.Contains(t, err.Error(), "root cause")
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := InternalError("wrapper", cause)
	assert.Equal(t, cause, err.Unwrap())
}

func TestIsType(t *testing.T) {
	assert.True(t, IsType(NotFoundError("account"), ErrTypeNotFound))
	assert.False(t, IsType(NotFoundError("account"), ErrTypeConflict))
	assert.False(t, IsType(fmt.Errorf("plain"), ErrTypeInternal))
	assert.False(t, IsType(nil, ErrTypeInternal))
}

func TestGetType(t *testing.T) {
	assert.Equal(t, ErrTypeValidation, GetType(ValidationError("bad input")))
	assert.Equal(t, ErrTypeInternal, GetType(fmt.Errorf("plain")))
	assert.Equal(t, ErrorType(""), GetType(nil))
}
