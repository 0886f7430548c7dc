package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/pprof"

	"github.com/nspcc-dev/dsocket/pkg/config"
	"go.uber.org/zap"
)

// StatusPath is the path the connection status is served on by the pprof
// service.
const StatusPath = "/debug/dsocket/status"

// StatusFunc returns a JSON-serializable snapshot of the application state.
type StatusFunc func() any

// NewPprofService creates a service with the runtime profiles under
// /debug/pprof/. If status is not nil, its result is also served on
// StatusPath, so that profiles can be matched with the connections served.
func NewPprofService(cfg config.BasicService, log *zap.Logger, status StatusFunc) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	mux := http.NewServeMux()
	for path, h := range map[string]http.HandlerFunc{
		"/debug/pprof/":        pprof.Index, // Named profiles (heap, goroutine, ...) too.
		"/debug/pprof/cmdline": pprof.Cmdline,
		"/debug/pprof/profile": pprof.Profile,
		"/debug/pprof/symbol":  pprof.Symbol,
		"/debug/pprof/trace":   pprof.Trace,
	} {
		mux.HandleFunc(path, h)
	}
	if status != nil {
		mux.Handle(StatusPath, statusHandler(status, log))
	}
	return NewService("Pprof", newServers(cfg.Addresses, mux, log), cfg, log)
}

func statusHandler(status StatusFunc, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status()); err != nil {
			log.Warn("failed to write status", zap.Error(err))
		}
	}
}
