package httpmw

import (
	"net/http"
	"runtime/debug"

	"github.com/keithlinneman/glue-artifact-store/internal/log"
	"github.com/keithlinneman/glue-artifact-store/internal/xerrors"
)

// Recover converts handler panics into 500 responses and logs them with
// the goroutine stack. onPanic, when non-nil, runs after logging (metrics
// counter bump).
func Recover(logger log.Logger, onPanic func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					// client went away mid-response; not our bug
					panic(rec)
				}

				var err error
				if e, ok := rec.(error); ok {
					err = xerrors.Wrap(e, "panic")
				} else {
					err = xerrors.Newf("panic: %v", rec)
				}

				logger.With(
					"http.request.method", r.Method,
					"url.path", r.URL.Path,
					"request_id", RequestIDFromContext(r.Context()),
				).Error(r.Context(), err, "httpserver panic recovered",
					"stack", string(debug.Stack()),
				)

				if onPanic != nil {
					onPanic()
				}

				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
