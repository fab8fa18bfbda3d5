package main

import (
	"context"
	"strings"
	"sync"

	"github.com/waveband/waveband/pkg/upstream"
)

// fakeClient is a scripted upstream.Client for tests. It records every call
// in order, serves playlists/segments from maps, and pops one scripted
// segment error per FetchSegment call before consulting the map.
type fakeClient struct {
	mu sync.Mutex

	calls       []string
	playlists   map[string]string
	segments    map[string][]byte
	segmentErrs []error
	resetErr    error
	authErr     error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		playlists: map[string]string{},
		segments:  map[string][]byte{},
	}
}

func (f *fakeClient) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeClient) FetchPlaylist(_ context.Context, channel string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("playlist " + channel)

	body, ok := f.playlists[channel]
	if !ok {
		return "", upstream.ErrUnavailable
	}
	return body, nil
}

func (f *fakeClient) FetchSegment(_ context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("segment " + path)

	if len(f.segmentErrs) > 0 {
		err := f.segmentErrs[0]
		f.segmentErrs = f.segmentErrs[1:]
		return nil, err
	}

	data, ok := f.segments[path]
	if !ok {
		return nil, upstream.ErrUnavailable
	}
	return data, nil
}

func (f *fakeClient) ResetSession(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("reset")
	return f.resetErr
}

func (f *fakeClient) Authenticate(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("authenticate")
	return f.authErr
}

func (f *fakeClient) callCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, call := range f.calls {
		if call == prefix || strings.HasPrefix(call, prefix+" ") {
			n++
		}
	}
	return n
}
