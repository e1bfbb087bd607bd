package server

import (
	"errors"
	"net/http"

	"github.com/jonathan/x-collector/internal/jobs"
	"github.com/jonathan/x-collector/internal/types"
)

// httpStatus maps service errors to HTTP status codes.
func httpStatus(err error) int {
	var notFound *jobs.ErrJobNotFound
	if errors.As(err, &notFound) {
		return http.StatusNotFound
	}
	var invalidType *jobs.ErrInvalidJobType
	if errors.As(err, &invalidType) {
		return http.StatusBadRequest
	}
	var terminal *types.ErrTerminalState
	if errors.As(err, &terminal) {
		return http.StatusConflict
	}
	var transition *types.ErrInvalidTransition
	if errors.As(err, &transition) {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
