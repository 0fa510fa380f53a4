package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"wabadash/internal/constants"
	apperrors "wabadash/internal/errors"
	"wabadash/internal/metrics"
	"wabadash/internal/models"
	"wabadash/internal/notify"
	"wabadash/internal/service"
	"wabadash/internal/validation"
	"wabadash/pkg/whatsapp"
	"wabadash/pkg/whatsapp/types"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// State is the lifecycle state of one template submission
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateMonitoring State = "monitoring"
	StateCompleted  State = "completed"
	StateError      State = "error"
)

// Audit endpoint names for the submission lifecycle
const (
	EventSubmitStart   = "TEMPLATE_SUBMIT_START"
	EventSubmitSuccess = "TEMPLATE_SUBMIT_SUCCESS"
	EventSubmitError   = "TEMPLATE_SUBMIT_ERROR"
	EventApproved      = "TEMPLATE_APPROVED"
	EventRejected      = "TEMPLATE_REJECTED"
	EventStopped       = "TEMPLATE_MONITOR_STOPPED"
)

// Check outcomes reported to metrics
const (
	checkPending  = "pending"
	checkApproved = "approved"
	checkRejected = "rejected"
	checkFailed   = "failed"
)

// ErrNotFound is returned for unknown submission ids
var ErrNotFound = errors.New("submission not found")

// Provider is the template surface of the provider client
type Provider interface {
	CreateTemplate(ctx context.Context, creds whatsapp.Credentials, def *types.TemplateDefinition) (*types.CreateTemplateResponse, error)
	GetTemplateStatus(ctx context.Context, creds whatsapp.Credentials, templateID string) (*types.TemplateStatusResponse, error)
}

// Clock schedules status checks
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Options tunes the polling schedule
type Options struct {
	InitialDelay time.Duration
	Interval     time.Duration
	// CheckTimeout bounds each status check. Zero uses the settings timeout.
	CheckTimeout time.Duration
	Graph        models.GraphConfig
	// Clock defaults to the wall clock
	Clock Clock
}

// OptionsFromConfig converts monitor config to Options, applying defaults
func OptionsFromConfig(cfg models.MonitorConfig, graph models.GraphConfig) Options {
	opts := Options{
		InitialDelay: time.Duration(cfg.InitialDelaySec) * time.Second,
		Interval:     time.Duration(cfg.PollIntervalSec) * time.Second,
		CheckTimeout: time.Duration(cfg.CheckTimeoutSec) * time.Second,
		Graph:        graph,
	}
	return opts.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.InitialDelay <= 0 {
		o.InitialDelay = time.Duration(constants.DefaultMonitorInitialDelaySec) * time.Second
	}
	if o.Interval <= 0 {
		o.Interval = time.Duration(constants.DefaultMonitorPollIntervalSec) * time.Second
	}
	if o.Clock == nil {
		o.Clock = realClock{}
	}
	return o
}

// Snapshot is a point-in-time copy of a submission
type Snapshot struct {
	ID                 string                   `json:"id"`
	TemplateID         string                   `json:"template_id,omitempty"`
	Status             State                    `json:"status"`
	Definition         types.TemplateDefinition `json:"definition"`
	LastProviderStatus string                   `json:"last_provider_status,omitempty"`
	RejectionReason    string                   `json:"rejection_reason,omitempty"`
	Error              string                   `json:"error,omitempty"`
	Checks             int                      `json:"checks"`
	CreatedAt          time.Time                `json:"created_at"`
	UpdatedAt          time.Time                `json:"updated_at"`
}

// Terminal reports whether no further transition will happen
func (s Snapshot) Terminal() bool {
	return s.Status == StateCompleted || s.Status == StateError || s.Status == StateIdle
}

type submission struct {
	snap   Snapshot
	cancel context.CancelFunc
	done   chan struct{}
	// stopRequested is set by Stop while the create call is in flight
	stopRequested bool
}

// TemplateMonitor submits templates and polls each one independently until
// the provider approves or rejects it
type TemplateMonitor struct {
	client    Provider
	settings  service.SettingsSource
	events    service.EventRecorder
	publisher notify.Publisher
	metrics   *metrics.Metrics
	logger    *logrus.Logger
	validator *validation.Validator
	opts      Options
	clock     Clock

	mu          sync.Mutex
	submissions map[string]*submission
	wg          sync.WaitGroup
}

func NewTemplateMonitor(client Provider, settings service.SettingsSource, events service.EventRecorder, publisher notify.Publisher, m *metrics.Metrics, logger *logrus.Logger, opts Options) *TemplateMonitor {
	if events == nil {
		events = service.NopRecorder{}
	}
	if publisher == nil {
		publisher = notify.NoopPublisher{}
	}
	opts = opts.withDefaults()
	return &TemplateMonitor{
		client:      client,
		settings:    settings,
		events:      events,
		publisher:   publisher,
		metrics:     m,
		logger:      logger,
		validator:   validation.New(),
		opts:        opts,
		clock:       opts.Clock,
		submissions: make(map[string]*submission),
	}
}

// Handle controls one running submission
type Handle struct {
	id      string
	monitor *TemplateMonitor
	done    <-chan struct{}
}

func (h *Handle) ID() string { return h.id }

// Stop cancels pending checks, resets the submission to idle and clears its
// template id. Stopping a finished submission has no effect.
func (h *Handle) Stop() { _ = h.monitor.Stop(h.id) }

// Snapshot returns the current state of the submission
func (h *Handle) Snapshot() Snapshot {
	snap, _ := h.monitor.Get(h.id)
	return snap
}

// Done is closed when the polling task exits
func (h *Handle) Done() <-chan struct{} { return h.done }

// Submit validates def, creates the template with the provider and starts
// monitoring it. Creation failures are returned and leave the submission in
// the error state; they are not retried.
func (m *TemplateMonitor) Submit(ctx context.Context, def types.TemplateDefinition) (*Handle, error) {
	if err := m.validator.Struct(&def); err != nil {
		return nil, err
	}
	if !def.HasBody() {
		return nil, apperrors.NewValidationError("components", "a BODY component is required")
	}

	now := m.clock.Now().UTC()
	sub := &submission{
		snap: Snapshot{
			ID:         uuid.NewString(),
			Status:     StateSubmitting,
			Definition: def,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		done: make(chan struct{}),
	}
	m.mu.Lock()
	m.submissions[sub.snap.ID] = sub
	m.mu.Unlock()

	log := service.LogWithContext(ctx, m.logger).WithFields(logrus.Fields{
		service.LogFieldSubmissionID: sub.snap.ID,
		service.LogFieldTemplateName: def.Name,
	})

	m.events.Record(ctx, service.Event{
		Endpoint:       EventSubmitStart,
		Method:         models.MethodInternal,
		RequestBody:    map[string]any{"name": def.Name, "category": def.Category, "language": def.Language},
		ResponseStatus: http.StatusOK,
	})

	templateID, err := m.create(ctx, &def)
	if err != nil {
		m.fail(sub.snap.ID, err.Error())
		close(sub.done)
		m.events.Record(ctx, service.Event{
			Endpoint:       EventSubmitError,
			Method:         models.MethodInternal,
			RequestBody:    map[string]string{"name": def.Name},
			ResponseStatus: http.StatusInternalServerError,
			ErrorMessage:   apperrors.GetUserMessage(err),
		})
		log.WithError(err).Error("Template submission failed")
		return nil, err
	}

	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.mu.Lock()
	stopped := sub.stopRequested
	if stopped {
		sub.snap.Status = StateIdle
	} else {
		sub.snap.TemplateID = templateID
		sub.snap.Status = StateMonitoring
		sub.cancel = cancel
	}
	sub.snap.UpdatedAt = m.clock.Now().UTC()
	m.mu.Unlock()

	m.events.Record(ctx, service.Event{
		Endpoint:       EventSubmitSuccess,
		Method:         models.MethodInternal,
		RequestBody:    map[string]string{"name": def.Name, "submission_id": sub.snap.ID},
		ResponseBody:   map[string]string{"template_id": templateID},
		ResponseStatus: http.StatusOK,
	})

	if stopped {
		cancel()
		close(sub.done)
		m.recordStopped(sub.snap.ID, templateID)
		return &Handle{id: sub.snap.ID, monitor: m, done: sub.done}, nil
	}
	log.WithField(service.LogFieldTemplateID, templateID).Info("Template submitted, monitoring approval")

	m.metrics.MonitorStarted()
	m.wg.Add(1)
	go m.run(taskCtx, sub.snap.ID, templateID, sub.done)

	return &Handle{id: sub.snap.ID, monitor: m, done: sub.done}, nil
}

func (m *TemplateMonitor) create(ctx context.Context, def *types.TemplateDefinition) (string, error) {
	settings, err := m.settings.Get(ctx)
	if err != nil {
		return "", err
	}
	creds := service.Credentials(settings, m.opts.Graph)
	if creds.AccessToken == "" || (creds.BusinessID == "" && creds.WABAID == "") {
		return "", apperrors.NewMissingConfigError("business_id", "API credentials not configured")
	}

	account := creds.BusinessID
	if account == "" {
		account = creds.WABAID
	}
	endpoint := fmt.Sprintf("/%s/%s/message_templates", creds.APIVersion, account)

	resp, err := m.client.CreateTemplate(ctx, creds, def)
	m.events.Record(ctx, service.ProviderCallEvent(endpoint, http.MethodPost, def, resp, err))
	if err != nil {
		return "", service.ProviderError(endpoint, creds.Timeout, err)
	}
	if resp.ID == "" {
		return "", apperrors.New(apperrors.ErrCodeProviderAPI, "template creation returned no id").
			WithUserMessage("WhatsApp API did not return a template id")
	}
	return resp.ID, nil
}

// run waits the initial delay, then checks on every interval until the
// template reaches a terminal status or ctx is cancelled
func (m *TemplateMonitor) run(ctx context.Context, id, templateID string, done chan struct{}) {
	defer m.wg.Done()
	defer close(done)
	defer m.metrics.MonitorStopped()

	wait := m.opts.InitialDelay
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.clock.After(wait):
		}

		if m.check(ctx, id, templateID) {
			return
		}
		wait = m.opts.Interval
	}
}

// check performs one status lookup and reports whether monitoring is over.
// Lookup failures are logged and leave the loop running.
func (m *TemplateMonitor) check(ctx context.Context, id, templateID string) bool {
	log := m.logger.WithFields(logrus.Fields{
		service.LogFieldSubmissionID: id,
		service.LogFieldTemplateID:   templateID,
	})

	settings, err := m.settings.Get(ctx)
	if err != nil {
		m.metrics.RecordMonitorCheck(checkFailed)
		log.WithError(err).Warn("Template status check skipped: settings unavailable")
		return false
	}
	creds := service.Credentials(settings, m.opts.Graph)
	if m.opts.CheckTimeout > 0 {
		creds.Timeout = m.opts.CheckTimeout
	}
	endpoint := fmt.Sprintf("/%s/%s", creds.APIVersion, templateID)

	resp, err := m.client.GetTemplateStatus(ctx, creds, templateID)
	if ctx.Err() != nil {
		return true
	}
	m.events.Record(ctx, service.ProviderCallEvent(endpoint, http.MethodGet, nil, resp, err))
	if err != nil {
		m.metrics.RecordMonitorCheck(checkFailed)
		m.touch(id, "")
		log.WithError(service.ProviderError(endpoint, creds.Timeout, err)).Warn("Template status check failed, will retry")
		return false
	}

	status := strings.ToUpper(resp.Status)
	log = log.WithField(service.LogFieldStatus, status)

	switch status {
	case types.TemplateStatusApproved:
		if !m.finish(id, StateCompleted, status, "") {
			return true
		}
		m.metrics.RecordMonitorCheck(checkApproved)
		log.Info("Template approved")
		m.terminal(ctx, id, templateID, EventApproved, notify.EventTemplateApproved, status, "")
		return true

	case types.TemplateStatusRejected:
		reason := resp.Reason()
		if !m.finish(id, StateError, status, reason) {
			return true
		}
		m.metrics.RecordMonitorCheck(checkRejected)
		log.WithField(service.LogFieldReason, reason).Warn("Template rejected")
		m.terminal(ctx, id, templateID, EventRejected, notify.EventTemplateRejected, status, reason)
		return true

	default:
		m.metrics.RecordMonitorCheck(checkPending)
		m.touch(id, status)
		log.Debug("Template still pending")
		return false
	}
}

func (m *TemplateMonitor) terminal(ctx context.Context, id, templateID, endpoint, eventType, status, reason string) {
	snap, _ := m.Get(id)

	ev := service.Event{
		Endpoint:       endpoint,
		Method:         models.MethodInternal,
		RequestBody:    map[string]string{"submission_id": id, "template_id": templateID},
		ResponseBody:   map[string]string{"status": status, "name": snap.Definition.Name},
		ResponseStatus: http.StatusOK,
	}
	if reason != "" {
		ev.ErrorMessage = reason
	}
	m.events.Record(ctx, ev)

	if err := m.publisher.Publish(ctx, notify.TemplateSubject(status), eventType, snap); err != nil {
		m.logger.WithError(err).WithField(service.LogFieldSubmissionID, id).Warn("Failed to publish template event")
	}
}

// touch records a completed check. It is a no-op once the submission has
// left the monitoring state.
func (m *TemplateMonitor) touch(id, providerStatus string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.submissions[id]
	if !ok || sub.snap.Status != StateMonitoring {
		return
	}
	sub.snap.Checks++
	if providerStatus != "" {
		sub.snap.LastProviderStatus = providerStatus
	}
	sub.snap.UpdatedAt = m.clock.Now().UTC()
}

// finish moves a monitoring submission to a terminal state. It reports false
// when the submission was stopped first.
func (m *TemplateMonitor) finish(id string, state State, providerStatus, reason string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.submissions[id]
	if !ok || sub.snap.Status != StateMonitoring {
		return false
	}
	sub.snap.Checks++
	sub.snap.Status = state
	sub.snap.LastProviderStatus = providerStatus
	sub.snap.RejectionReason = reason
	if state == StateError {
		sub.snap.Error = "template rejected"
		if reason != "" {
			sub.snap.Error = "template rejected: " + reason
		}
	}
	sub.snap.UpdatedAt = m.clock.Now().UTC()
	if sub.cancel != nil {
		sub.cancel()
	}
	return true
}

func (m *TemplateMonitor) fail(id, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sub, ok := m.submissions[id]; ok {
		sub.snap.Status = StateError
		sub.snap.Error = msg
		sub.snap.UpdatedAt = m.clock.Now().UTC()
	}
}

// Stop cancels monitoring of id. A monitoring submission returns to idle with
// its template id cleared. A submission still being created returns to idle
// once the create call succeeds, without being monitored. Finished
// submissions are left as they are.
func (m *TemplateMonitor) Stop(id string) error {
	m.mu.Lock()
	sub, ok := m.submissions[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	switch sub.snap.Status {
	case StateSubmitting:
		sub.stopRequested = true
		m.mu.Unlock()
		return nil
	case StateMonitoring:
	default:
		m.mu.Unlock()
		return nil
	}
	templateID := sub.snap.TemplateID
	sub.snap.Status = StateIdle
	sub.snap.TemplateID = ""
	sub.snap.UpdatedAt = m.clock.Now().UTC()
	if sub.cancel != nil {
		sub.cancel()
	}
	m.mu.Unlock()

	m.recordStopped(id, templateID)
	return nil
}

func (m *TemplateMonitor) recordStopped(id, templateID string) {
	m.events.Record(context.Background(), service.Event{
		Endpoint:       EventStopped,
		Method:         models.MethodInternal,
		RequestBody:    map[string]string{"submission_id": id, "template_id": templateID},
		ResponseStatus: http.StatusOK,
	})
	m.logger.WithFields(logrus.Fields{
		service.LogFieldSubmissionID: id,
		service.LogFieldTemplateID:   templateID,
	}).Info("Template monitoring stopped")
}

// Get returns the snapshot of id
func (m *TemplateMonitor) Get(id string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.submissions[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return sub.snap, nil
}

// List returns every tracked submission, newest first
func (m *TemplateMonitor) List() []Snapshot {
	m.mu.Lock()
	out := make([]Snapshot, 0, len(m.submissions))
	for _, sub := range m.submissions {
		out = append(out, sub.snap)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Forget drops a finished submission. Monitoring submissions must be stopped
// first.
func (m *TemplateMonitor) Forget(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.submissions[id]
	if !ok {
		return ErrNotFound
	}
	if !sub.snap.Terminal() {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "submission is still running").
			WithUserMessage("Stop the submission before removing it")
	}
	delete(m.submissions, id)
	return nil
}

// Shutdown cancels every running task and waits for them to exit or for ctx
// to expire
func (m *TemplateMonitor) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	running := 0
	for _, sub := range m.submissions {
		if sub.cancel != nil && sub.snap.Status == StateMonitoring {
			running++
		}
		if sub.cancel != nil {
			sub.cancel()
		}
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.WithField(service.LogFieldCount, running).Info("Template monitor shut down")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
