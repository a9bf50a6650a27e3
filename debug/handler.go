package debug

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"strings"

	"github.com/go-kit/log"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger reports whether the auction ledger is healthy.
type Pinger interface {
	Ping(ctx context.Context) error
}

func NewHandler(pinger Pinger, logger log.Logger) http.Handler {
	router := mux.NewRouter()
	router.StrictSlash(true)

	router.Methods("GET").Path("/debug/pprof/").HandlerFunc(pprof.Index)
	router.Methods("GET").Path("/debug/pprof/cmdline").HandlerFunc(pprof.Cmdline)
	router.Methods("GET").Path("/debug/pprof/profile").HandlerFunc(pprof.Profile)
	router.Methods("GET").Path("/debug/pprof/symbol").HandlerFunc(pprof.Symbol)
	router.Methods("GET").Path("/debug/pprof/trace").HandlerFunc(pprof.Trace)
	router.Methods("GET").Path("/debug/pprof/goroutine").Handler(pprof.Handler("goroutine"))
	router.Methods("GET").Path("/debug/pprof/heap").Handler(pprof.Handler("heap"))
	router.Methods("GET").Path("/debug/pprof/allocs").Handler(pprof.Handler("allocs"))
	router.Methods("GET").Path("/debug/pprof/block").Handler(pprof.Handler("block"))
	router.Methods("GET").Path("/debug/pprof/mutex").Handler(pprof.Handler("mutex"))

	router.Methods("GET").Path("/metrics").Handler(promhttp.Handler())
	router.Methods("GET").Path("/-/ping").Handler(pingHandler(pinger))

	router.Methods("GET").Path("/").Handler(indexHandler(router))

	router.Use(
		LoggingMiddleware(logger),
		GZipMiddleware,
	)

	return router
}

func pingHandler(pinger Pinger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "text/plain; charset=utf-8")
		if err := pinger.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "%v\n", err)
			return
		}
		fmt.Fprintf(w, "OK\n")
	})
}

func indexHandler(r *mux.Router) http.Handler {
	type endpointSet struct {
		name      string
		endpoints []string
	}
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		var (
			debug   = endpointSet{name: "debug"}
			service = endpointSet{name: "auction"}
		)
		r.Walk(func(route *mux.Route, router *mux.Router, ancestors []*mux.Route) error {
			var (
				routePath, _ = route.GetPathTemplate()
				isValid      = routePath != ""
				isDebug      = strings.HasPrefix(routePath, "/debug/")
				isIndex      = routePath == "/"
			)
			switch {
			case isValid && isDebug:
				debug.endpoints = append(debug.endpoints, routePath)
			case isValid && !isIndex:
				service.endpoints = append(service.endpoints, routePath)
			}
			return nil
		})

		w.Header().Set("content-type", "text/html; charset=utf-8")

		for _, endpoints := range []endpointSet{debug, service} {
			fmt.Fprintf(w, "<h1>%s</h1>\n", endpoints.name)
			fmt.Fprintf(w, "<ul>\n")
			for _, endpoint := range endpoints.endpoints {
				fmt.Fprintf(w, "<li><a href=\"%[1]s\">%[1]s</a></li>\n", endpoint)
			}
			fmt.Fprintf(w, "</ul>\n")
		}
	})
}
