package pipeline

import (
	"context"
	"errors"
	"time"

	"hsmt-backend/internal/histories"
	"hsmt-backend/internal/queue"
	"hsmt-backend/internal/shared/metrics"
	"hsmt-backend/internal/shared/telemetry"
	"hsmt-backend/internal/tasks"
	"hsmt-backend/internal/trace"
	"hsmt-backend/internal/workerproc"
)

// MsgInternal is mailed when a stage fails for a reason the sender cannot fix.
const MsgInternal = "Hệ thống gặp lỗi trong quá trình xử lý bộ hồ sơ. Chúng tôi sẽ kiểm tra và phản hồi sớm."

var errDisconnected = errors.New("delivery channel closed")

// Job is one parsed message ready to run.
type Job struct {
	HSID   string
	Fields map[string]any
	Input  any
	Run    func(ctx context.Context) error
	// Lookup resolves HSID when the message does not carry it.
	Lookup func(ctx context.Context) string
}

// Stage binds a queue to its business function.
type Stage struct {
	Name  string
	Queue string
	Step  histories.Step
	// AckEarly acknowledges before running and hands the job to the task pool.
	AckEarly bool
	// MarkOnly failures flag the rows without queuing a reply. The reply
	// stage itself uses it so a broken mail server cannot loop.
	MarkOnly bool
	Parse    func(body []byte) (Job, error)
}

// Driver consumes one stage queue.
type Driver struct {
	Bus       queue.Consumer
	Histories histories.Repo
	Pipeline  *Pipeline
	Pool      *tasks.Pool
	Backoff   time.Duration

	sleep func(ctx context.Context, d time.Duration)
}

// Run consumes s until ctx is done, reconnecting after Backoff when the
// delivery stream drops.
func (d *Driver) Run(ctx context.Context, s Stage) error {
	for {
		err := d.consume(ctx, s)
		if ctx.Err() != nil {
			return nil
		}
		telemetry.Warn("worker.consume.disconnected", map[string]any{
			"stage": s.Name, "queue": s.Queue, "error": errString(err), "backoff_ms": d.Backoff.Milliseconds(),
		})
		d.wait(ctx)
	}
}

func (d *Driver) consume(ctx context.Context, s Stage) error {
	deliveries, err := d.Bus.Consume(ctx, s.Queue)
	if err != nil {
		return err
	}
	telemetry.Info("worker.consume.started", map[string]any{"stage": s.Name, "queue": s.Queue, "ack_early": s.AckEarly})
	for dl := range deliveries {
		d.Handle(ctx, s, dl)
	}
	return errDisconnected
}

// Handle processes one delivery: parse, history, business function, ack.
func (d *Driver) Handle(ctx context.Context, s Stage, dl *queue.Delivery) {
	metrics.IncStageReceived(s.Name)
	base := map[string]any{"stage": s.Name, "queue": s.Queue, "delivery_tag": dl.ID}

	job, err := s.Parse(dl.Body)
	if err != nil {
		meta := workerproc.ComputeMeta(dl.Body)
		telemetry.Error("worker."+s.Name+".parse_failed", telemetry.Merge(base, map[string]any{
			"error": workerproc.Describe(err), "body_len": meta.BodyLen, "body_sha256": meta.BodySHA,
		}))
		metrics.IncStageDropped(s.Name)
		_ = dl.Ack()
		return
	}
	if job.HSID == "" && job.Lookup != nil {
		job.HSID = job.Lookup(ctx)
	}
	fields := telemetry.Merge(base, telemetry.Merge(job.Fields, map[string]any{"hs_id": job.HSID}))
	telemetry.Info("worker."+s.Name+".received", fields)

	if s.AckEarly {
		if err := dl.Ack(); err != nil {
			telemetry.Warn("worker."+s.Name+".ack_failed", telemetry.Merge(fields, map[string]any{"error": err.Error()}))
		}
		run := func(ctx context.Context, rep tasks.Reporter) error {
			err := d.execute(tasks.WithReporter(ctx, rep), s, job, fields)
			if needsFailure(err) {
				d.fail(ctx, s, job.HSID, fields)
			}
			return err
		}
		if d.Pool == nil {
			_ = run(ctx, nil)
			return
		}
		id, err := d.Pool.Submit(s.Name+":"+job.HSID, run)
		if err != nil {
			telemetry.Error("worker."+s.Name+".submit_failed", telemetry.Merge(fields, map[string]any{"error": err.Error()}))
			return
		}
		telemetry.Debug("worker."+s.Name+".submitted", telemetry.Merge(fields, map[string]any{"task_id": id}))
		return
	}

	// Failed stages are not requeued. Only a run cut short by shutdown goes
	// back on the queue for the next process.
	err = d.execute(ctx, s, job, fields)
	switch {
	case !needsFailure(err):
	case ctx.Err() != nil:
		telemetry.Warn("worker."+s.Name+".interrupted", telemetry.Merge(fields, map[string]any{"error": err.Error()}))
		_ = dl.Nack(true)
		return
	default:
		d.fail(ctx, s, job.HSID, fields)
	}
	if err := dl.Ack(); err != nil {
		telemetry.Warn("worker."+s.Name+".ack_failed", telemetry.Merge(fields, map[string]any{"error": err.Error()}))
	}
}

// execute wraps the business function with history, trace and metrics.
// Data errors are turned into a failure reply here.
func (d *Driver) execute(ctx context.Context, s Stage, job Job, fields map[string]any) (err error) {
	start := time.Now()
	var tr *trace.Trace
	if d.Pipeline != nil {
		tr = d.Pipeline.Trace.Start(s.Name, job.HSID, job.Input)
	}
	ctx = trace.WithTrace(ctx, tr)
	defer func() { tr.End(ctx, map[string]any{"ok": err == nil}, err) }()

	var histID int64
	if d.Histories != nil && s.Step != "" && job.HSID != "" {
		if histID, err = d.Histories.Open(ctx, job.HSID, s.Step); err != nil {
			telemetry.Warn("worker."+s.Name+".history_open_failed", telemetry.Merge(fields, map[string]any{"error": err.Error()}))
			histID = 0
		}
	}

	err = job.Run(ctx)
	metrics.ObserveStageDurationMs(metrics.Since(start))
	if err == nil {
		if histID > 0 {
			if cerr := d.Histories.Close(ctx, histID); cerr != nil {
				telemetry.Warn("worker."+s.Name+".history_close_failed", telemetry.Merge(fields, map[string]any{"error": cerr.Error()}))
			}
		}
		metrics.IncStageCompleted(s.Name)
		telemetry.Info("worker."+s.Name+".completed", telemetry.Merge(fields, map[string]any{"duration_ms": time.Since(start).Milliseconds()}))
		return nil
	}

	metrics.IncStageFailed(s.Name)
	telemetry.Error("worker."+s.Name+".failed", telemetry.Merge(fields, map[string]any{
		"error": workerproc.Describe(err), "duration_ms": time.Since(start).Milliseconds(),
	}))
	if histID > 0 && workerproc.KindOf(err) == workerproc.KindSettled {
		if nerr := d.Histories.Note(ctx, histID, err.Error()); nerr != nil {
			telemetry.Warn("worker."+s.Name+".history_note_failed", telemetry.Merge(fields, map[string]any{"error": nerr.Error()}))
		}
	}
	var proc workerproc.ErrProcess
	if errors.As(err, &proc) && proc.Kind == workerproc.KindData && ctx.Err() == nil {
		if s.MarkOnly {
			d.mark(ctx, job.HSID, fields)
		} else {
			d.notify(ctx, job.HSID, proc.UserMessage, fields)
		}
	}
	return err
}

// needsFailure reports whether err still has to be reported by the driver.
// Data failures were answered in execute and settled ones must not be.
func needsFailure(err error) bool {
	if err == nil {
		return false
	}
	kind := workerproc.KindOf(err)
	return kind != workerproc.KindData && kind != workerproc.KindSettled
}

// fail reports a non-data failure: a generic reply, or only the row status
// for MarkOnly stages.
func (d *Driver) fail(ctx context.Context, s Stage, hsID string, fields map[string]any) {
	if s.MarkOnly {
		d.mark(ctx, hsID, fields)
		return
	}
	d.notify(ctx, hsID, MsgInternal, fields)
}

func (d *Driver) mark(ctx context.Context, hsID string, fields map[string]any) {
	if d.Pipeline == nil || hsID == "" {
		return
	}
	if err := d.Pipeline.MarkFailed(ctx, hsID); err != nil {
		telemetry.Error("pipeline.fail.mark_failed", telemetry.Merge(fields, map[string]any{"error": err.Error()}))
	}
}

func (d *Driver) notify(ctx context.Context, hsID, msg string, fields map[string]any) {
	if d.Pipeline == nil || hsID == "" {
		return
	}
	if err := d.Pipeline.Fail(ctx, hsID, msg); err != nil {
		telemetry.Error("pipeline.fail.notify_failed", telemetry.Merge(fields, map[string]any{"error": err.Error()}))
	}
}

func (d *Driver) wait(ctx context.Context) {
	if d.sleep != nil {
		d.sleep(ctx, d.Backoff)
		return
	}
	t := time.NewTimer(d.Backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
