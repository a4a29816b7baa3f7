package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want int
	}{
		{"validation", Validation("bad input"), http.StatusUnprocessableEntity},
		{"plan limit", PlanLimit("quota reached", "daily_limit"), http.StatusPaymentRequired},
		{"not found", NotFound("job"), http.StatusNotFound},
		{"conflict", Conflict("already running"), http.StatusConflict},
		{"provider", Provider("upstream failed", errors.New("boom")), http.StatusBadGateway},
		{"timeout", Timeout("deadline exceeded", nil), http.StatusGatewayTimeout},
		{"internal", Internal("oops", nil), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.HTTPStatus())
		})
	}
}

func TestPlanLimitCarriesBreachedLimit(t *testing.T) {
	err := PlanLimit("too big", "max_file_size_bytes")
	assert.Equal(t, "max_file_size_bytes", err.Details["limit"])
}

func TestFromPassesTypedErrorsThrough(t *testing.T) {
	typed := Conflict("busy")
	wrapped := fmt.Errorf("starting job: %w", typed)

	got := From(wrapped)
	assert.Same(t, typed, got)
}

func TestFromWrapsUntypedErrors(t *testing.T) {
	got := From(errors.New("disk full"))
	assert.Equal(t, KindInternal, got.Kind)
	assert.ErrorContains(t, got, "disk full")
}

func TestFromNil(t *testing.T) {
	assert.Nil(t, From(nil))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(NotFound("media file")))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

func TestIs(t *testing.T) {
	err := fmt.Errorf("outer: %w", Validation("missing field"))
	assert.True(t, Is(err, KindValidation))
	assert.False(t, Is(err, KindConflict))
	assert.False(t, Is(errors.New("plain"), KindValidation))
}
