package main

import (
	"net/http"
)

type notFound struct{}

func (n notFound) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	notFoundResponse(w, r)
}

// Players probe all sorts of paths (favicons, variant playlists we don't
// serve). The answer is a bare 404, body-less, same as for unhandled methods.
func notFoundResponse(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNotFound)
}
