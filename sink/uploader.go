// Package sink holds what the upload sinks share: a background queue and an HTTP client.
package sink

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"strings"
	"time"

	log "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/akhenakh/sensorbridge/metrics"
	"github.com/akhenakh/sensorbridge/worker"
)

const (
	DefaultTimeout   = 20 * time.Second
	DefaultQueueSize = 100
)

// Uploader runs the uploads of a sink one at a time.
type Uploader struct {
	name   string
	logger log.Logger
	queue  *worker.Queue
	client *http.Client

	// StopTimeout bounds the wait for pending uploads
	StopTimeout time.Duration
}

// NewUploader returns an Uploader whose requests are bounded by timeout.
func NewUploader(logger log.Logger, name string, timeout time.Duration) *Uploader {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Uploader{
		name:        name,
		logger:      logger,
		queue:       worker.NewQueue(logger, DefaultQueueSize),
		client:      &http.Client{Timeout: timeout},
		StopTimeout: timeout,
	}
}

func (u *Uploader) Name() string {
	return u.name
}

func (u *Uploader) Start() error {
	level.Info(u.logger).Log("msg", "starting uploader")
	u.queue.Start()
	return nil
}

func (u *Uploader) Stop() {
	level.Info(u.logger).Log("msg", "stopping uploader")
	if err := u.queue.Stop(u.StopTimeout); err != nil {
		level.Warn(u.logger).Log("msg", "pending uploads dropped", "error", err)
	}
}

// Schedule queues job, a full queue drops it.
func (u *Uploader) Schedule(job worker.Job) {
	if err := u.queue.Submit(job); err != nil {
		metrics.UploadCounter.WithLabelValues(u.name, metrics.ResultError).Inc()
		level.Warn(u.logger).Log("msg", "upload dropped", "error", err)
	}
}

// Post sends body as JSON and counts the result, prepare can add headers.
func (u *Uploader) Post(url string, body interface{}, prepare func(r *http.Request)) ([]byte, error) {
	resp, err := u.post(url, body, prepare)
	if err != nil {
		metrics.UploadCounter.WithLabelValues(u.name, metrics.ResultError).Inc()
		return nil, err
	}
	metrics.UploadCounter.WithLabelValues(u.name, metrics.ResultOK).Inc()
	return resp, nil
}

func (u *Uploader) post(url string, body interface{}, prepare func(r *http.Request)) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if prepare != nil {
		prepare(req)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	rb, err := ioutil.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(rb)))
	}
	return rb, nil
}
