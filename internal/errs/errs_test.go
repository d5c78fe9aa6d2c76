package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfThroughWrapping(t *testing.T) {
	base := NotFound("room %s not found", "ABCD")
	wrapped := fmt.Errorf("failed to load room: %w", base)

	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsConflict(wrapped))
	assert.Equal(t, "failed to load room: room ABCD not found", wrapped.Error())
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindInternal, KindOf(nil))
}

func TestWrap(t *testing.T) {
	cause := errors.New("status 401")
	err := Wrap(KindUnauthorized, cause, "spotify: playback request rejected")

	assert.True(t, IsUnauthorized(err))
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, Wrap(KindConflict, nil, "unused"))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{Validation("bad"), http.StatusBadRequest},
		{NotFound("missing"), http.StatusNotFound},
		{Conflict("already playing"), http.StatusConflict},
		{Unauthorized("not owner"), http.StatusUnauthorized},
		{Unprocessable("skip failed"), http.StatusUnprocessableEntity},
		{errors.New("other"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(KindOf(tt.err).String(), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}
