package main

import (
	"context"

	"github.com/pascaldekloe/metrics"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/waveband/waveband/pkg/upstream"
)

var (
	metricRecoveryCount = metrics.MustCounter("waveband_session_recovery", "Number of session recovery cycles started")
	metricRecoveryOk    = metrics.MustCounter("waveband_session_recovery_ok", "Number of segment fetches rescued by re-authentication")
	metricRecoveryFail  = metrics.MustCounter("waveband_session_recovery_fail", "Number of recovery cycles that produced no content")
)

// fetchSegment fetches one segment, masking a single session rotation from the
// caller. On session expiry the session is reset and re-established, strictly
// in that order, and the fetch runs exactly once more. A second expiry, like a
// failed reset or login, is final: never more than one recovery cycle per
// request, so a misbehaving upstream is not hammered with logins.
//
// Genuine unavailability is returned as-is. Re-authenticating would not
// conjure up a segment the upstream does not have.
func (proxy *Proxy) fetchSegment(ctx context.Context, segment string) ([]byte, error) {
	data, err := proxy.client.FetchSegment(ctx, segment)
	if err == nil || !errors.Is(err, upstream.ErrSessionExpired) {
		return data, err
	}

	metricRecoveryCount.Add(1)
	proxy.log.Info("upstream session expired, re-authenticating", zap.String("segment", segment))

	if err := proxy.client.ResetSession(ctx); err != nil {
		metricRecoveryFail.Add(1)
		return nil, errors.WithMessage(err, "resetting session")
	}
	if err := proxy.client.Authenticate(ctx); err != nil {
		metricRecoveryFail.Add(1)
		return nil, errors.WithMessage(err, "re-authenticating session")
	}

	data, err = proxy.client.FetchSegment(ctx, segment)
	if err != nil {
		metricRecoveryFail.Add(1)
		return nil, err
	}

	metricRecoveryOk.Add(1)
	return data, nil
}
