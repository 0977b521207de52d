package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/repairmind/print-agent/internal/config"
	"github.com/repairmind/print-agent/internal/job"
	"github.com/repairmind/print-agent/internal/printer"
	"github.com/repairmind/print-agent/internal/queue"
	"github.com/repairmind/print-agent/internal/render"
	"github.com/repairmind/print-agent/internal/session"
	"github.com/repairmind/print-agent/internal/spooler"
)

// The orchestrator arms this independently of the monitor's own 120 s cap.
const monitorSafetyTimeout = 150 * time.Second

var ErrPrinterNotFound = errors.New("Printer not found")

// backendLink is the session surface the orchestrator drives.
type backendLink interface {
	Connect(ctx context.Context) error
	Disconnect()
	State() session.State
	RegisterPrinter(ctx context.Context, desc printer.Descriptor) error
	UpdatePrinterStatus(ctx context.Context, printerID, status string, meta map[string]any) error
	GetAllPendingJobs(ctx context.Context) ([]job.Job, error)
	UpdateJobStatus(jobID, status string, meta map[string]any) error
	RegisteredPrinters() []printer.Descriptor
}

type enumerator interface {
	Enumerate(ctx context.Context) ([]printer.Descriptor, error)
}

type documentRenderer interface {
	Render(ctx context.Context, j job.Job, desc printer.Descriptor) (*render.Output, error)
	Scratch() *render.Scratch
}

type spoolWatcher interface {
	Watch(printerName string, handle *spooler.Handle, onStatus spooler.OnStatus) func()
}

// Agent wires the queue, session, renderer, spooler and monitor together and
// owns the process lifecycle.
type Agent struct {
	cfg     *config.Config
	log     *logrus.Entry
	bus     *Bus
	metrics *Metrics

	queue    *queue.Queue
	link     backendLink
	enum     enumerator
	renderer documentRenderer
	submit   spooler.Submitter
	watcher  spoolWatcher

	mu         sync.Mutex
	detected   map[string]printer.Descriptor
	lastStatus map[string]string

	stopCh    chan struct{}
	wg        sync.WaitGroup
	metricSrv *http.Server
}

func New(cfg *config.Config, log *logrus.Logger) (*Agent, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	q, err := queue.New(queue.Options{
		Path:       cfg.Queue.Path,
		MaxRetries: cfg.Queue.MaxRetries,
		DefaultTTL: cfg.Queue.TTL,
		Log:        log,
	})
	if err != nil {
		return nil, fmt.Errorf("create queue: %w", err)
	}

	renderer, err := render.New(log)
	if err != nil {
		return nil, fmt.Errorf("create renderer: %w", err)
	}

	a := &Agent{
		cfg:        cfg,
		log:        log.WithField("component", "agent"),
		bus:        NewBus(),
		metrics:    NewMetrics(),
		queue:      q,
		enum:       printer.NewEnumerator(log),
		renderer:   renderer,
		submit:     spooler.NewSubmitter(log),
		watcher:    spooler.NewMonitor(spooler.NewStatusReader(), log),
		detected:   make(map[string]printer.Descriptor),
		lastStatus: make(map[string]string),
		stopCh:     make(chan struct{}),
	}

	a.link = session.New(session.Config{
		URL:               cfg.Backend.WebsocketURL,
		TenantID:          cfg.Backend.TenantID,
		ClientID:          cfg.Backend.ClientID,
		Token:             cfg.Backend.Token,
		APIKey:            cfg.Backend.APIKey,
		HeartbeatInterval: cfg.Backend.HeartbeatInterval,
		Log:               log,
	}, a.sessionCallbacks())

	q.Subscribe(a.onQueueEvent)
	q.SetExecuteCallback(a.execute)
	return a, nil
}

func (a *Agent) Bus() *Bus           { return a.bus }
func (a *Agent) Metrics() *Metrics   { return a.metrics }
func (a *Agent) Queue() *queue.Queue { return a.queue }

func (a *Agent) sessionCallbacks() session.Callbacks {
	return session.Callbacks{
		OnJob:         a.handleInboundJob,
		OnPendingJobs: func(jobs []job.Job) { a.enqueuePending(jobs) },
		OnStateChange: func(st session.State) {
			a.bus.Publish(EventConnectionState, string(st), st)
		},
		OnConnected:   a.onFirstConnect,
		OnReconnected: a.onReconnected,
		OnReconnecting: func(attempt int, delay time.Duration) {
			a.bus.Publish(EventReconnecting,
				fmt.Sprintf("reconnecting in %s (attempt %d)", delay, attempt),
				map[string]any{"attempt": attempt, "delay": delay})
		},
		OnReconnectFailed: func(attempt int, err error) {
			a.bus.Publish(EventReconnectFailed, err.Error(),
				map[string]any{"attempt": attempt})
		},
		OnAuthError: func(msg string) {
			a.bus.Publish(EventAuthError, msg, nil)
		},
		OnError: func(err error) {
			a.bus.Publish(EventError, err.Error(), nil)
		},
	}
}

// Start brings the agent up: printer snapshot, queue timers, background
// connect. A failed initial connect is not fatal; the session retries on its
// own.
func (a *Agent) Start(ctx context.Context) error {
	if err := a.refreshPrinters(ctx); err != nil {
		a.log.WithError(err).Warn("initial printer enumeration failed")
	}

	a.queue.Start()

	go func() {
		if err := a.link.Connect(ctx); err != nil {
			a.log.WithError(err).Warn("initial connect failed, retrying in background")
		}
	}()

	if a.cfg.Printers.RefreshInterval > 0 {
		a.wg.Add(1)
		go a.refreshLoop()
	}
	if a.cfg.Metrics.ListenAddr != "" {
		a.startMetricsListener()
	}
	return nil
}

// Stop shuts down gracefully: session down first so no new jobs arrive,
// then the queue flushes to disk.
func (a *Agent) Stop() {
	close(a.stopCh)
	a.wg.Wait()
	if a.metricSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = a.metricSrv.Shutdown(ctx)
		cancel()
	}
	a.link.Disconnect()
	a.queue.Stop()
}

func (a *Agent) startMetricsListener() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	a.metricSrv = &http.Server{Addr: a.cfg.Metrics.ListenAddr, Handler: mux}
	go func() {
		if err := a.metricSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.WithError(err).Warn("metrics listener stopped")
		}
	}()
}

func (a *Agent) refreshLoop() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.cfg.Printers.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := a.refreshPrinters(ctx); err != nil {
				a.log.WithError(err).Warn("printer refresh failed")
			}
			cancel()
		}
	}
}

// refreshPrinters replaces the detected snapshot atomically, reports status
// changes to the backend and auto-registers newcomers.
func (a *Agent) refreshPrinters(ctx context.Context) error {
	descs, err := a.enum.Enumerate(ctx)
	if err != nil {
		return err
	}

	a.mu.Lock()
	previous := a.detected
	next := make(map[string]printer.Descriptor, len(descs))
	for _, d := range descs {
		next[d.SystemName] = d
	}
	a.detected = next
	var changed, added []printer.Descriptor
	for _, d := range descs {
		if a.lastStatus[d.SystemName] != d.Metadata.Status {
			a.lastStatus[d.SystemName] = d.Metadata.Status
			changed = append(changed, d)
		}
		if _, known := previous[d.SystemName]; !known && len(previous) > 0 {
			added = append(added, d)
		}
	}
	a.mu.Unlock()

	for _, d := range descs {
		a.bus.Publish(EventPrinterDetected, d.SystemName, d)
	}

	if a.link.State() != session.StateConnected {
		return nil
	}
	for _, d := range changed {
		if err := a.link.UpdatePrinterStatus(ctx, d.SystemName, d.Metadata.Status, nil); err != nil {
			a.log.WithError(err).WithField("printer", d.SystemName).Debug("status report failed")
		} else {
			a.bus.Publish(EventPrinterStatus, d.Metadata.Status, d)
		}
	}
	if a.cfg.Backend.AutoRegister {
		for _, d := range added {
			if err := a.link.RegisterPrinter(ctx, d); err != nil {
				a.log.WithError(err).WithField("printer", d.SystemName).Warn("auto-register failed")
			}
		}
	}
	return nil
}

func (a *Agent) Printers() []printer.Descriptor {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]printer.Descriptor, 0, len(a.detected))
	for _, d := range a.detected {
		out = append(out, d)
	}
	return out
}

// onFirstConnect registers every detected printer (best effort) when
// auto-register is on, then syncs pending jobs.
func (a *Agent) onFirstConnect() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.cfg.Backend.AutoRegister {
		for _, d := range a.Printers() {
			if err := a.link.RegisterPrinter(ctx, d); err != nil {
				a.log.WithError(err).WithField("printer", d.SystemName).Warn("printer registration failed")
			}
		}
	}
	a.syncPendingJobs(ctx)
}

// onReconnected runs after the session replayed its registrations.
func (a *Agent) onReconnected() {
	a.metrics.Reconnected()
	a.bus.Publish(EventInfo, "reconnected", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	a.syncPendingJobs(ctx)
}

func (a *Agent) syncPendingJobs(ctx context.Context) {
	jobs, err := a.link.GetAllPendingJobs(ctx)
	if err != nil {
		a.log.WithError(err).Warn("pending job sync failed")
		return
	}
	accepted := a.enqueuePending(jobs)
	if accepted > 0 {
		a.metrics.PendingSynced(accepted)
	}
	a.log.WithFields(logrus.Fields{"received": len(jobs), "accepted": accepted}).Info("pending jobs synced")
}

// enqueuePending admits a batch; duplicates are dropped by the queue's
// idempotency rule.
func (a *Agent) enqueuePending(jobs []job.Job) int {
	accepted := 0
	for _, j := range jobs {
		if a.queue.Enqueue(j, queue.EnqueueOptions{}) {
			accepted++
		}
	}
	return accepted
}

func (a *Agent) handleInboundJob(j job.Job) {
	a.metrics.JobReceived()
	a.queue.Enqueue(j, queue.EnqueueOptions{})
}

// onQueueEvent forwards queue lifecycle to the shell bus and keeps metrics
// and the backend's terminal statuses in step.
func (a *Agent) onQueueEvent(ev queue.Event) {
	a.bus.Publish(EventJob, string(ev.Type), ev.Entry)

	stats := a.queue.GetStats()
	a.metrics.SetQueueDepth(stats.Queued + stats.Processing)

	switch ev.Type {
	case queue.EventCompleted:
		a.metrics.JobCompleted()
		_ = a.link.UpdateJobStatus(ev.Entry.Job.ID, "completed", nil)
	case queue.EventFailed:
		a.metrics.JobFailed()
		_ = a.link.UpdateJobStatus(ev.Entry.Job.ID, "failed", map[string]any{"error": ev.Entry.Error})
	case queue.EventExpired:
		a.metrics.JobExpired()
		_ = a.link.UpdateJobStatus(ev.Entry.Job.ID, "expired", map[string]any{"error": ev.Entry.Error})
	case queue.EventCancelled:
		_ = a.link.UpdateJobStatus(ev.Entry.Job.ID, "cancelled", nil)
	}
}

func (a *Agent) lookupPrinter(name string) (printer.Descriptor, bool) {
	for _, d := range a.link.RegisteredPrinters() {
		if d.SystemName == name {
			return d, true
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	d, ok := a.detected[name]
	return d, ok
}

// execute is the queue's executor: render, submit, then wait for the
// monitor's single terminal verdict.
func (a *Agent) execute(ctx context.Context, e queue.Entry) error {
	desc, ok := a.lookupPrinter(e.PrinterSystemName)
	if !ok {
		return ErrPrinterNotFound
	}

	_ = a.link.UpdateJobStatus(e.Job.ID, "sent", nil)

	out, err := a.renderer.Render(ctx, e.Job, desc)
	if err != nil {
		return err
	}
	if out.FilePath != "" {
		defer a.renderer.Scratch().Release(out.FilePath)
	}

	handle, err := a.submit.Submit(ctx, spooler.Payload{
		Data:     out.Data,
		FilePath: out.FilePath,
	}, desc.SystemName, spooler.SubmitOptions{
		Landscape:    out.Landscape,
		PageWidthMM:  out.PageWidthMM,
		PageHeightMM: out.PageHeightMM,
	})
	if err != nil {
		return err
	}

	return a.awaitOutcome(ctx, e.Job.ID, desc.SystemName, handle)
}

func (a *Agent) awaitOutcome(ctx context.Context, jobID, printerName string, handle *spooler.Handle) error {
	terminal := make(chan spooler.Report, 1)
	cancel := a.watcher.Watch(printerName, handle, func(r spooler.Report) {
		if r.Terminal {
			select {
			case terminal <- r:
			default:
			}
			return
		}
		if r.HasError {
			a.bus.Publish(EventWarning,
				fmt.Sprintf("printer %s reports %s", printerName, r.Detail), nil)
			_ = a.link.UpdateJobStatus(jobID, "printing", map[string]any{"hasError": true, "detail": r.Detail})
		}
	})
	defer cancel()

	safety := time.NewTimer(monitorSafetyTimeout)
	defer safety.Stop()

	select {
	case r := <-terminal:
		if r.Status == spooler.ReportFailed {
			return fmt.Errorf("print failed: %s", r.Detail)
		}
		return nil
	case <-safety.C:
		a.log.WithField("job", jobID).Warn("monitor safety timer fired, assuming printed")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitTestJob enqueues a locally-built test job, bypassing the backend.
func (a *Agent) SubmitTestJob(printerName string) (string, bool) {
	id := job.NewTestID()
	ok := a.queue.Enqueue(job.Job{
		ID:                id,
		PrinterSystemName: printerName,
		DocumentType:      job.DocReceipt,
		Content: []byte(`{"storeName":"RepairMind","ticketNumber":"TEST",` +
			`"items":[{"quantity":1,"description":"Test de impression","price":0}]}`),
	}, queue.EnqueueOptions{})
	return id, ok
}
