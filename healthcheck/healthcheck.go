// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package healthcheck

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/alexliesenfeld/health"
)

const (
	Path = "/health"

	checkTimeout = 5 * time.Second
)

// Check reports an error while the component is unhealthy
type Check func(context.Context) error

// Handler serves the combined status of checks. It answers 503 once any
// check fails.
func Handler(name string, checks ...Check) http.Handler {
	opts := make([]health.CheckerOption, 0, len(checks)+1)
	opts = append(opts, health.WithTimeout(checkTimeout))
	for i, check := range checks {
		opts = append(opts, health.WithCheck(health.Check{
			Name:  fmt.Sprintf("%s-%d", name, i),
			Check: check,
		}))
	}
	return health.NewHandler(health.NewChecker(opts...))
}

// Register adds the health handler to mux
func Register(mux *http.ServeMux, name string, checks ...Check) {
	mux.Handle(Path, Handler(name, checks...))
}
