// Package uplink posts readings to an Ambient channel.
package uplink

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/itohio/envrelay/pkg/bme680"
	"github.com/itohio/envrelay/pkg/watchdog"
)

// DefaultEndpoint is the Ambient data API. {channel} is replaced by the
// channel id.
const DefaultEndpoint = "http://ambidata.io/api/v2/channels/{channel}/data"

// ErrStatus wraps non-200 responses.
var ErrStatus = errors.New("uplink: unexpected HTTP status")

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config for the uplink.
type Config struct {
	Endpoint   string
	Channel    string
	WriteKey   string
	Timeout    time.Duration
	MaxRetries int
	RetryStep  time.Duration
}

// DefaultConfig keeps one attempt well inside the default watchdog lease.
var DefaultConfig = Config{
	Endpoint:   DefaultEndpoint,
	Timeout:    5 * time.Second,
	MaxRetries: 3,
	RetryStep:  2 * time.Second,
}

// Result of a Send call.
type Result struct {
	Sent     bool
	Attempts int
	Status   int
	Err      error
}

// Uplink owns the HTTP client used for telemetry.
type Uplink struct {
	cfg     Config
	client  Doer
	feeder  watchdog.Feeder
	compact func()
}

// New creates an uplink. A nil client uses http.DefaultClient.
func New(cfg Config, client Doer, feeder watchdog.Feeder) *Uplink {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig.MaxRetries
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig.Timeout
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Uplink{
		cfg:     cfg,
		client:  client,
		feeder:  feeder,
		compact: runtime.GC,
	}
}

// SetCompact replaces the hook run after every attempt.
func (u *Uplink) SetCompact(fn func()) {
	if fn == nil {
		fn = func() {}
	}
	u.compact = fn
}

// URL returns the channel data URL.
func (u *Uplink) URL() string {
	return strings.ReplaceAll(u.cfg.Endpoint, "{channel}", u.cfg.Channel)
}

// RetryDelay returns the pause after failed attempt n.
func (c Config) RetryDelay(n int) time.Duration {
	return time.Duration(n) * c.RetryStep
}

// Send posts r, retrying with a linearly increasing delay. It never panics
// and reports failure through Result.
func (u *Uplink) Send(ctx context.Context, r bme680.Reading, iaq *float64) Result {
	body, err := json.Marshal(NewPayload(u.cfg.WriteKey, r, iaq))
	if err != nil {
		return Result{Err: errors.Wrap(err, "uplink: encode payload")}
	}

	var res Result
	for attempt := 1; attempt <= u.cfg.MaxRetries; attempt++ {
		res.Attempts = attempt
		_ = u.feeder.Feed()
		res.Status, res.Err = u.post(ctx, body)
		_ = u.feeder.Feed()

		if res.Err == nil {
			res.Sent = true
			log.WithField("attempt", attempt).Info("uplink sent")
			return res
		}
		if ctx.Err() != nil {
			res.Err = ctx.Err()
			return res
		}

		remaining := u.cfg.MaxRetries - attempt
		log.WithFields(log.Fields{
			"attempt":   attempt,
			"remaining": remaining,
			"status":    res.Status,
		}).Warnf("uplink failed: %v", res.Err)

		if remaining > 0 {
			if err := u.feeder.Sleep(ctx, u.cfg.RetryDelay(attempt)); err != nil {
				res.Err = err
				return res
			}
		}
	}
	return res
}

// post performs one attempt. The response body is drained and closed and the
// compaction hook runs whatever the outcome.
func (u *Uplink) post(ctx context.Context, body []byte) (status int, err error) {
	var resp *http.Response
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("uplink: panic during request: %v", r)
		}
		if resp != nil && resp.Body != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		u.compact()
	}()

	ctx, cancel := context.WithTimeout(ctx, u.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.URL(), bytes.NewReader(body))
	if err != nil {
		return 0, errors.Wrap(err, "uplink: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err = u.client.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "uplink: post")
	}
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, errors.Wrapf(ErrStatus, "HTTP %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}
