package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesKindThroughWrapping(t *testing.T) {
	err := fmt.Errorf("create booking: %w", NotFound("host \"ada\" not found"))

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrSlotUnavailable))
	assert.Equal(t, "create booking: host \"ada\" not found", err.Error())
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, HTTPStatus(ErrNotFound))
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(ErrUnauthorized))
	assert.Equal(t, http.StatusTooManyRequests, HTTPStatus(ErrQuotaExceeded))
	assert.Equal(t, http.StatusConflict, HTTPStatus(fmt.Errorf("x: %w", ErrSlotUnavailable)))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(InvalidInput("bad")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
}

func TestMessageHidesInternalErrors(t *testing.T) {
	assert.Equal(t, "host not found", Message(fmt.Errorf("load: %w", NotFound("host not found"))))
	assert.Equal(t, "internal server error", Message(errors.New("pq: connection refused")))
}
