package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/pscheid92/trafficpulse/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestErrorTypes_HTTPStatus(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		err    *Error
		typ    ErrorType
		status int
	}{
		{ValidationError("bad"), TypeValidation, http.StatusBadRequest},
		{NotFoundError("missing"), TypeNotFound, http.StatusNotFound},
		{RateLimitedError("slow down"), TypeRateLimited, http.StatusTooManyRequests},
		{InternalError("oops", cause), TypeInternal, http.StatusInternalServerError},
		{ExternalError("upstream failed", cause), TypeExternal, http.StatusBadGateway},
		{UnavailableError("not ready", cause), TypeUnavailable, http.StatusServiceUnavailable},
		{&Error{Type: "weird"}, "weird", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			assert.Equal(t, tt.typ, tt.err.Type)
			assert.Equal(t, tt.status, tt.err.HTTPStatus())
		})
	}
}

func TestError_Message(t *testing.T) {
	assert.Equal(t, "validation: bad page", ValidationError("bad page").Error())
	assert.Equal(t, "external: history failed: timeout", ExternalError("history failed", errors.New("timeout")).Error())
	assert.NotContains(t, InternalError("oops", nil).Error(), "<nil>")
}

func TestError_UnwrapsToCause(t *testing.T) {
	err := UnavailableError("not ready", domain.ErrNotBootstrapped)

	assert.ErrorIs(t, err, domain.ErrNotBootstrapped)
	assert.ErrorIs(t, fmt.Errorf("handler: %w", err), domain.ErrNotBootstrapped)
}

func TestWithContext(t *testing.T) {
	err := ExternalError("history failed", nil).WithContext("page", 3).WithContext("kind", "decode")

	resp := err.ToResponse()
	assert.Equal(t, "history failed", resp.Error)
	assert.Equal(t, TypeExternal, resp.Type)
	assert.Equal(t, map[string]any{"page": 3, "kind": "decode"}, resp.Context)

	empty := &Error{Type: TypeInternal}
	empty.WithContext("k", "v")
	assert.Equal(t, "v", empty.Context["k"])
}

func TestAsStructuredError(t *testing.T) {
	assert.Nil(t, AsStructuredError(nil))

	original := NotFoundError("nope")
	assert.Same(t, original, AsStructuredError(fmt.Errorf("wrapped: %w", original)))

	plain := AsStructuredError(errors.New("plain"))
	assert.Equal(t, TypeInternal, plain.Type)
	assert.Equal(t, "internal server error", plain.Message)
}
