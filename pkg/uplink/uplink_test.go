package uplink

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/envrelay/pkg/bme680"
	"github.com/itohio/envrelay/pkg/watchdog"
)

type fakeFeeder struct {
	feeds  int
	sleeps []time.Duration
}

func (f *fakeFeeder) Feed() error {
	f.feeds++
	return nil
}

func (f *fakeFeeder) Sleep(ctx context.Context, d time.Duration) error {
	f.sleeps = append(f.sleeps, d)
	return ctx.Err()
}

var testReading = bme680.Reading{
	Temperature:   23.456,
	Humidity:      41.04,
	Pressure:      1013.25,
	GasResistance: 48211.6,
	HasGas:        true,
}

func testConfig(endpoint string) Config {
	return Config{
		Endpoint:   endpoint,
		Channel:    "12345",
		WriteKey:   "secret",
		Timeout:    time.Second,
		MaxRetries: 3,
		RetryStep:  2 * time.Second,
	}
}

func TestSend_Success(t *testing.T) {
	var got map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	feeder := &fakeFeeder{}
	u := New(testConfig(srv.URL+"/api/v2/channels/{channel}/data"), srv.Client(), feeder)
	compactions := 0
	u.SetCompact(func() { compactions++ })

	iaq := 87.6
	res := u.Send(context.Background(), testReading, &iaq)

	require.True(t, res.Sent)
	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, 1, compactions)
	assert.Empty(t, feeder.sleeps)
	assert.Equal(t, "/api/v2/channels/12345/data", path)
	assert.Equal(t, map[string]any{
		"writeKey": "secret",
		"d1":       23.5,
		"d2":       41.0,
		"d3":       88.0,
		"d4":       1013.3,
		"d5":       48212.0,
	}, got)
}

func TestSend_ServerErrorExhaustsRetries(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	feeder := &fakeFeeder{}
	u := New(testConfig(srv.URL), srv.Client(), feeder)
	compactions := 0
	u.SetCompact(func() { compactions++ })

	res := u.Send(context.Background(), testReading, nil)

	assert.False(t, res.Sent)
	assert.ErrorIs(t, res.Err, ErrStatus)
	assert.Equal(t, http.StatusInternalServerError, res.Status)
	assert.Equal(t, 3, res.Attempts)
	assert.EqualValues(t, 3, atomic.LoadInt32(&hits))
	assert.Equal(t, 3, compactions)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, feeder.sleeps)
}

func TestSend_RecoversOnRetry(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	feeder := &fakeFeeder{}
	u := New(testConfig(srv.URL), srv.Client(), feeder)
	u.SetCompact(nil)

	res := u.Send(context.Background(), testReading, nil)
	require.True(t, res.Sent)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, []time.Duration{2 * time.Second}, feeder.sleeps)
}

type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(r *http.Request) (*http.Response, error) { return f(r) }

func TestSend_ClosesBodyEveryAttempt(t *testing.T) {
	var bodies []*trackingBody
	client := doerFunc(func(r *http.Request) (*http.Response, error) {
		b := &trackingBody{Reader: strings.NewReader("nope")}
		bodies = append(bodies, b)
		return &http.Response{StatusCode: http.StatusForbidden, Body: b}, nil
	})

	u := New(testConfig("http://example.invalid/{channel}"), client, &fakeFeeder{})
	u.SetCompact(nil)
	res := u.Send(context.Background(), testReading, nil)

	assert.False(t, res.Sent)
	require.Len(t, bodies, 3)
	for i, b := range bodies {
		assert.True(t, b.closed, "body %d", i)
	}
}

func TestSend_TransportErrorAndPanic(t *testing.T) {
	calls := 0
	client := doerFunc(func(r *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("connection refused")
		}
		panic("driver bug")
	})

	u := New(testConfig("http://example.invalid/{channel}"), client, &fakeFeeder{})
	compactions := 0
	u.SetCompact(func() { compactions++ })

	var res Result
	require.NotPanics(t, func() {
		res = u.Send(context.Background(), testReading, nil)
	})
	assert.False(t, res.Sent)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 0, res.Status)
	assert.Equal(t, 3, compactions)
}

func TestSend_Cancelled(t *testing.T) {
	client := doerFunc(func(r *http.Request) (*http.Response, error) {
		return nil, r.Context().Err()
	})
	u := New(testConfig("http://example.invalid/{channel}"), client, &fakeFeeder{})
	u.SetCompact(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := u.Send(ctx, testReading, nil)
	assert.False(t, res.Sent)
	assert.Equal(t, 1, res.Attempts)
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestSend_StalledEndpointAbandonedInsideLease(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	lease := watchdog.NewSoft(400 * time.Millisecond)
	keeper := watchdog.NewKeeper(lease, 100*time.Millisecond, nil)

	cfg := testConfig(srv.URL + "/{channel}")
	cfg.Timeout = 150 * time.Millisecond
	cfg.MaxRetries = 2
	cfg.RetryStep = 50 * time.Millisecond

	u := New(cfg, srv.Client(), keeper)
	expired := false
	u.SetCompact(func() { expired = expired || lease.Expired() })

	start := time.Now()
	res := u.Send(context.Background(), testReading, nil)

	assert.False(t, res.Sent)
	assert.Equal(t, 2, res.Attempts)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.False(t, expired, "lease expired during an attempt")
	assert.False(t, lease.Expired())
	assert.Less(t, time.Since(start), time.Second)
}

func TestURL(t *testing.T) {
	u := New(Config{Channel: "777"}, nil, &fakeFeeder{})
	assert.Equal(t, "http://ambidata.io/api/v2/channels/777/data", u.URL())
}
