package runtime

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// ReadyCheck is a named dependency probe surfaced on /readyz.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

// NewBaseMux returns a ServeMux pre-wired with /healthz and /readyz.
// /readyz runs every check with a short timeout and reports all failures.
func NewBaseMux(checks ...ReadyCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		var failures []string
		for _, check := range checks {
			if check.Check == nil {
				continue
			}
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			err := check.Check(ctx)
			cancel()
			if err != nil {
				name := check.Name
				if name == "" {
					name = "dependency"
				}
				failures = append(failures, name+": "+err.Error())
			}
		}
		if len(failures) > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(strings.Join(failures, "; ")))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
