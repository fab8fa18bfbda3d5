package main

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/steinfletcher/apitest"

	"github.com/waveband/waveband/pkg/upstream"
)

func TestFetchSegmentNoRecoveryNeeded(t *testing.T) {
	v := apitest.DefaultVerifier{}
	proxy, client := testProxy(t)
	client.segments["a.aac"] = fSegment

	data, err := proxy.fetchSegment(context.Background(), "a.aac")
	v.NoError(t, err)
	v.Equal(t, fSegment, data)
	v.Equal(t, []string{"segment a.aac"}, client.calls)
}

func TestFetchSegmentUnavailableNotRetried(t *testing.T) {
	v := apitest.DefaultVerifier{}
	proxy, client := testProxy(t)

	_, err := proxy.fetchSegment(context.Background(), "a.aac")
	v.Equal(t, true, errors.Is(err, upstream.ErrUnavailable))
	v.Equal(t, []string{"segment a.aac"}, client.calls)
}

func TestFetchSegmentRecoveryOrdering(t *testing.T) {
	v := apitest.DefaultVerifier{}
	proxy, client := testProxy(t)
	client.segmentErrs = []error{upstream.ErrSessionExpired}
	client.segments["a.aac"] = fSegment

	data, err := proxy.fetchSegment(context.Background(), "a.aac")
	v.NoError(t, err)
	v.Equal(t, fSegment, data)

	// reset completes before authenticate, authenticate before the retry
	v.Equal(t, []string{"segment a.aac", "reset", "authenticate", "segment a.aac"}, client.calls)
}

func TestFetchSegmentSingleRecoveryCycle(t *testing.T) {
	v := apitest.DefaultVerifier{}
	proxy, client := testProxy(t)
	client.segmentErrs = []error{upstream.ErrSessionExpired, upstream.ErrSessionExpired}
	client.segments["a.aac"] = fSegment

	_, err := proxy.fetchSegment(context.Background(), "a.aac")
	v.Equal(t, true, errors.Is(err, upstream.ErrSessionExpired))

	// bounded: one reset/login pair, two fetches, nothing more
	v.Equal(t, []string{"segment a.aac", "reset", "authenticate", "segment a.aac"}, client.calls)
}

func TestFetchSegmentRecoveryFailures(t *testing.T) {
	v := apitest.DefaultVerifier{}

	t.Run("reset fails", func(tt *testing.T) {
		proxy, client := testProxy(tt)
		client.segmentErrs = []error{upstream.ErrSessionExpired}
		client.resetErr = assertionError("boom")

		_, err := proxy.fetchSegment(context.Background(), "a.aac")
		v.Equal(tt, true, err != nil)
		v.Equal(tt, []string{"segment a.aac", "reset"}, client.calls)
	})

	t.Run("login fails", func(tt *testing.T) {
		proxy, client := testProxy(tt)
		client.segmentErrs = []error{upstream.ErrSessionExpired}
		client.authErr = assertionError("boom")

		_, err := proxy.fetchSegment(context.Background(), "a.aac")
		v.Equal(tt, true, err != nil)
		v.Equal(tt, []string{"segment a.aac", "reset", "authenticate"}, client.calls)
	})
}
