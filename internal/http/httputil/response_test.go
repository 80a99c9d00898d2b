package httputil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hxuan190/swap-router/internal/aggregator"
	"github.com/hxuan190/swap-router/internal/services/quoter"
)

func TestMapError(t *testing.T) {
	cases := map[string]struct {
		err    error
		status int
	}{
		"no route":      {&aggregator.NoRouteFoundError{Reason: "no candidate paths"}, http.StatusNotFound},
		"invalid":       {fmt.Errorf("%w: amount must be positive", aggregator.ErrInvalidRequest), http.StatusBadRequest},
		"configuration": {&quoter.ConfigurationError{Reason: "exact output on V2"}, http.StatusBadRequest},
		"not ready":     {aggregator.ErrNotReady, http.StatusServiceUnavailable},
		"exhausted":     {&quoter.ExhaustedError{Attempts: 3}, http.StatusBadGateway},
		"transport":     {fmt.Errorf("batch: %w", &quoter.TransportError{Kind: quoter.FailureTimeout, Err: errors.New("eof")}), http.StatusBadGateway},
		"other":         {errors.New("boom"), http.StatusInternalServerError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.status, MapError(tc.err).StatusCode)
		})
	}
}

func TestMapErrorHidesInternalDetail(t *testing.T) {
	herr := MapError(errors.New("secret dsn"))
	assert.NotContains(t, herr.Message, "secret")
}
