// Package visit submits completed zone visits to the ranking backend.
package visit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"zonewatch/internal/logger"
	"zonewatch/internal/metrics"
	"zonewatch/internal/model"
	"zonewatch/internal/service/proximity"
)

// Identity is the signed-in user as seen at submission time
type Identity struct {
	UserID *string
	Token  string
}

type IdentityProvider interface {
	Identity(ctx context.Context) Identity
}

// DefaultDrainTimeout bounds how long Stop keeps submitting queued reports
const DefaultDrainTimeout = 5 * time.Second

// Result reports the outcome of an asynchronous submission
type Result struct {
	Report model.VisitReport
	Err    error
}

// Recorder turns zone exits into visit reports. Exits are queued and submitted by a
// single worker so the position stream never waits on the network. There are no retries.
type Recorder struct {
	baseURL  string
	client   *http.Client
	identity IdentityProvider

	queue        chan model.VisitReport
	onResult     func(Result)
	drainTimeout time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	quit      chan struct{}
	done      chan struct{}
}

func NewRecorder(baseURL string, timeout time.Duration, identity IdentityProvider, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Recorder{
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       &http.Client{Timeout: timeout},
		identity:     identity,
		queue:        make(chan model.VisitReport, queueSize),
		drainTimeout: DefaultDrainTimeout,
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// SetDrainTimeout changes the Stop drain bound. Call before Start.
func (r *Recorder) SetDrainTimeout(d time.Duration) {
	if d > 0 {
		r.drainTimeout = d
	}
}

// OnResult installs a callback for asynchronous outcomes. Call before Start.
func (r *Recorder) OnResult(fn func(Result)) {
	r.onResult = fn
}

// Start launches the submission worker. Only Stop ends it: cancelling ctx does not,
// so exits emitted during shutdown are still submitted.
func (r *Recorder) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		go r.run(context.WithoutCancel(ctx))
	})
}

// Stop submits whatever is already queued within the drain timeout and waits for the
// worker to exit. Reports left over when the timeout expires are delivered as failures.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() {
		close(r.quit)
	})
	r.startOnce.Do(func() {
		// never started: nothing will submit what is queued
		for {
			select {
			case report := <-r.queue:
				r.deliver(Result{Report: report, Err: ErrStopped})
			default:
				close(r.done)
				return
			}
		}
	})
	<-r.done
}

// HandleZoneEvent queues a report for every exit
func (r *Recorder) HandleZoneEvent(ev proximity.Event) {
	if ev.Kind != proximity.ZoneExit {
		return
	}
	report := model.VisitReport{
		ZoneID:          ev.Zone.ID,
		DwellTimeMillis: ev.DwellMillis(),
		UserID:          r.identity.Identity(context.Background()).UserID,
	}
	if err := r.Enqueue(report); err != nil {
		logger.L().Warn("visit_dropped", "zone_id", report.ZoneID, "dwell_ms", report.DwellTimeMillis, "err", err)
		r.deliver(Result{Report: report, Err: err})
	}
}

// Enqueue hands a report to the worker without blocking
func (r *Recorder) Enqueue(report model.VisitReport) error {
	select {
	case <-r.quit:
		return ErrStopped
	default:
	}

	select {
	case r.queue <- report:
		return nil
	default:
		metrics.VisitsTotal.WithLabelValues("queue_full").Inc()
		return ErrQueueFull
	}
}

func (r *Recorder) run(ctx context.Context) {
	defer close(r.done)

	for {
		select {
		case <-r.quit:
			r.drain(ctx)
			return
		case report := <-r.queue:
			r.submit(ctx, report)
		}
	}
}

func (r *Recorder) drain(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, r.drainTimeout)
	defer cancel()

	for {
		select {
		case report := <-r.queue:
			if err := ctx.Err(); err != nil {
				metrics.VisitsTotal.WithLabelValues("undrained").Inc()
				logger.L().Warn("visit_undrained", "zone_id", report.ZoneID, "err", err)
				r.deliver(Result{Report: report, Err: err})
				continue
			}
			r.submit(ctx, report)
		default:
			return
		}
	}
}

func (r *Recorder) submit(ctx context.Context, report model.VisitReport) {
	err := r.RecordVisit(ctx, report)
	if err != nil {
		logger.L().Error("visit_submit_failed", "zone_id", report.ZoneID, "dwell_ms", report.DwellTimeMillis, "err", err)
	}
	r.deliver(Result{Report: report, Err: err})
}

func (r *Recorder) deliver(res Result) {
	if r.onResult != nil {
		r.onResult(res)
	}
}

type rankPayload struct {
	Data rankFields `json:"data"`
}

type rankFields struct {
	Time int64  `json:"time"`
	User string `json:"user"`
	Zone string `json:"zone"`
}

// RecordVisit posts one report. A nil UserID fails with ErrMissingIdentity before any request.
func (r *Recorder) RecordVisit(ctx context.Context, report model.VisitReport) error {
	if report.UserID == nil || *report.UserID == "" {
		metrics.VisitsTotal.WithLabelValues("missing_identity").Inc()
		return ErrMissingIdentity
	}

	body, err := json.Marshal(rankPayload{Data: rankFields{
		Time: report.DwellTimeMillis,
		User: *report.UserID,
		Zone: report.ZoneID,
	}})
	if err != nil {
		return fmt.Errorf("error encoding visit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/ranks", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error building visit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tok := r.identity.Identity(ctx).Token; tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	t0 := time.Now()
	resp, err := r.client.Do(req)
	metrics.VisitDurationMs.Observe(float64(time.Since(t0).Milliseconds()))
	if err != nil {
		metrics.VisitsTotal.WithLabelValues("network").Inc()
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.VisitsTotal.WithLabelValues("rejected").Inc()
		return rejected(resp)
	}
	io.Copy(io.Discard, resp.Body)

	metrics.VisitsTotal.WithLabelValues("ok").Inc()
	logger.L().Info("visit_recorded", "zone_id", report.ZoneID, "dwell_ms", report.DwellTimeMillis)
	return nil
}

func rejected(resp *http.Response) error {
	rerr := &RejectedError{Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var env apiError
	if json.Unmarshal(raw, &env) == nil && env.Error.Message != "" {
		rerr.Message = env.Error.Message
	}
	return rerr
}

// Visit is a ranking entry as listed by the backend
type Visit struct {
	ID   model.FlexibleID `json:"id"`
	Time int64            `json:"time"`
	User string           `json:"user"`
	Zone string           `json:"zone"`
}

// ListVisits fetches the ranking list. Both flat entries and entries nested
// under "attributes" are accepted.
func (r *Recorder) ListVisits(ctx context.Context) ([]Visit, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/api/ranks", nil)
	if err != nil {
		return nil, err
	}
	if tok := r.identity.Identity(ctx).Token; tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, rejected(resp)
	}

	var envelope struct {
		Data []struct {
			Visit
			Attributes *Visit `json:"attributes"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("error decoding ranks: %w", err)
	}

	visits := make([]Visit, 0, len(envelope.Data))
	for _, item := range envelope.Data {
		v := item.Visit
		if item.Attributes != nil {
			id := v.ID
			v = *item.Attributes
			v.ID = id
		}
		visits = append(visits, v)
	}
	return visits, nil
}
