package app

import (
	"net/http"

	"github.com/gorilla/mux"
)

// handler is the narrow surface App needs from a router, in the teacher's
// muxWrapper idiom, so routes can be registered without importing gorilla
// directly outside this package.
type handler interface {
	Handle(pattern string, handler http.Handler)
	HandleFunc(pattern string, f func(http.ResponseWriter, *http.Request)) *mux.Route
}

type muxWrapper struct {
	*mux.Router
}

func (m muxWrapper) Handle(pattern string, handler http.Handler) {
	m.Router.Handle(pattern, handler)
}
