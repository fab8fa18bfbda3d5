package main

import (
	"net/http"
	"path"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/pascaldekloe/metrics"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/waveband/waveband/pkg/upstream"
)

const (
	headerContentType = "Content-Type"

	mimePlaylist = "application/x-mpegURL"
	mimeSegment  = "audio/x-aac"
	mimeKey      = "text/plain"
)

var (
	metricPlaylistServed      = metrics.MustCounter("waveband_playlist_served", "Number of playlists served")
	metricPlaylistUnavailable = metrics.MustCounter("waveband_playlist_unavailable", "Number of playlist requests answered 503")
	metricSegmentServed       = metrics.MustCounter("waveband_segment_served", "Number of segments served")
	metricSegmentUnavailable  = metrics.MustCounter("waveband_segment_unavailable", "Number of segment requests answered 503")
)

// Resource classes are matched in declaration order: playlist, then segment,
// then key. Everything else, including any non-GET method, is a 404.
func (proxy *Proxy) router() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = notFound{}
	r.MethodNotAllowedHandler = notFound{}
	r.Use(handlers.RecoveryHandler(handlers.PrintRecoveryStack(true)))
	r.Use(withHTTPLogging(proxy.log))

	r.HandleFunc("/metrics", metrics.ServeHTTP).Methods("GET")
	r.HandleFunc(`/{path:.*\.m3u8}`, proxy.playlistGet).Methods("GET")
	r.HandleFunc(`/{path:.*\.aac}`, proxy.segmentGet).Methods("GET")
	r.HandleFunc(`/{path:(?:.*/)?key/1}`, proxy.keyGet).Methods("GET")

	return r
}

// GET /.../<channel>.m3u8
func (proxy *Proxy) playlistGet(w http.ResponseWriter, r *http.Request) {
	channel := strings.TrimSuffix(path.Base(mux.Vars(r)["path"]), ".m3u8")
	if channel == "" {
		notFoundResponse(w, r)
		return
	}

	body, err := proxy.client.FetchPlaylist(r.Context(), channel)
	if err != nil {
		if !errors.Is(err, upstream.ErrUnavailable) {
			proxy.log.Error("playlist fetch failed", zap.String("channel", channel), zap.Error(err))
		}
		metricPlaylistUnavailable.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	metricPlaylistServed.Add(1)
	w.Header().Add(headerContentType, mimePlaylist)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// GET /.../<segment>.aac
func (proxy *Proxy) segmentGet(w http.ResponseWriter, r *http.Request) {
	segment := mux.Vars(r)["path"]

	data, err := proxy.fetchSegment(r.Context(), segment)
	if err != nil {
		if !errors.Is(err, upstream.ErrUnavailable) && !errors.Is(err, upstream.ErrSessionExpired) {
			proxy.log.Error("segment fetch failed", zap.String("segment", segment), zap.Error(err))
		}
		metricSegmentUnavailable.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	metricSegmentServed.Add(1)
	w.Header().Add(headerContentType, mimeSegment)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// GET /.../key/1
//
// Served from configuration, no upstream involved: players ask for the key on
// every playlist rotation and it never changes.
func (proxy *Proxy) keyGet(w http.ResponseWriter, r *http.Request) {
	w.Header().Add(headerContentType, mimeKey)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(proxy.key)
}
