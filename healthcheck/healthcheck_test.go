// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package healthcheck

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandler(t *testing.T) {
	tests := []struct {
		name   string
		check  Check
		status int
	}{
		{
			name:   "healthy",
			check:  func(context.Context) error { return nil },
			status: http.StatusOK,
		},
		{
			name:   "unhealthy",
			check:  func(context.Context) error { return errors.New("source unreachable") },
			status: http.StatusServiceUnavailable,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			mux := http.NewServeMux()
			Register(mux, "relayer", test.check)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, Path, nil))
			require.Equal(t, test.status, rec.Code)
		})
	}
}
