// Package runner orchestrates diagnostic and erase operations. One state
// machine per device, Idle → Validating → Running → terminal; distinct
// devices run concurrently, a second request for a busy device is rejected,
// never queued.
//
// The Validating state is the single enforcement choke point for the safety
// invariants: it re-reads the device's live classification and rejects
// before any destructive process is ever spawned.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zenithax-cc/taotie/internal/config"
	"github.com/zenithax-cc/taotie/internal/inventory"
	"github.com/zenithax-cc/taotie/internal/store"
	"github.com/zenithax-cc/taotie/pkg/execute"
	"github.com/zenithax-cc/taotie/pkg/utils"
)

var (
	ErrOperationInProgress = errors.New("operation already in progress for device")
	ErrNotEligible         = errors.New("device is not erase-eligible")
	ErrUnresolvedPath      = errors.New("device has no resolved block path")
	ErrExpertRequired      = errors.New("operation requires the expert-mode pin")
	ErrUnknownKind         = errors.New("unknown operation kind")
)

// targetPrefixes are the only device nodes a destructive command may be
// pointed at. Anything else (including unresolved RAID coordinates) is
// rejected during validation.
var targetPrefixes = []string{"/dev/sd", "/dev/nvme"}

type State int32

const (
	StateIdle State = iota
	StateValidating
	StateRunning
	StateCompleted
	StateFailed
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateValidating:
		return "Validating"
	case StateRunning:
		return "Running"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	case StateAborted:
		return "Aborted"
	}
	return "Unknown"
}

// Request describes one operation against one device.
type Request struct {
	DeviceID string
	Kind     store.Kind

	// Preset selects the workload/standard within the kind: fio preset,
	// badblocks mode, or erase standard.
	Preset string

	// Pin is the expert-mode pin, required only for high-risk presets.
	Pin string

	// OnDone, when set, is invoked with the terminal result.
	OnDone func(*store.OperationResult)
}

type operation struct {
	id       string
	deviceID string
	kind     store.Kind

	state  atomic.Int32
	done   chan struct{}
	result *store.OperationResult

	mu          sync.Mutex
	proc        *execute.Supervised
	cancel      context.CancelFunc
	abortReason string
}

func (op *operation) setState(s State) { op.state.Store(int32(s)) }

func (op *operation) abort(reason string) {
	op.mu.Lock()
	defer op.mu.Unlock()

	if op.abortReason == "" {
		op.abortReason = reason
	}
	if op.cancel != nil {
		op.cancel()
	}
	if op.proc != nil {
		op.proc.Terminate()
	}
}

func (op *operation) aborted() (string, bool) {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.abortReason, op.abortReason != ""
}

// Handle is the caller's view of an in-flight operation.
type Handle struct {
	op *operation
}

func (h *Handle) ID() string            { return h.op.id }
func (h *Handle) DeviceID() string      { return h.op.deviceID }
func (h *Handle) Kind() store.Kind      { return h.op.kind }
func (h *Handle) State() State          { return State(h.op.state.Load()) }
func (h *Handle) Done() <-chan struct{} { return h.op.done }

// Wait blocks until the operation reaches a terminal state.
func (h *Handle) Wait() *store.OperationResult {
	<-h.op.done
	return h.op.result
}

type Orchestrator struct {
	cfg *config.Config
	inv *inventory.Manager
	db  *store.Store

	mu     sync.Mutex
	active map[string]*operation
}

func New(cfg *config.Config, inv *inventory.Manager, db *store.Store) *Orchestrator {
	o := &Orchestrator{
		cfg:    cfg,
		inv:    inv,
		db:     db,
		active: make(map[string]*operation),
	}

	// A device that vanishes from a concurrent rescan mid-run aborts its
	// operation; a destructive tool must never outlive its target's
	// identity.
	inv.Subscribe(o.onPublish)

	return o
}

// Start begins an operation asynchronously. It returns once the state
// machine holds the device slot; completion is delivered through the
// handle or the request's OnDone callback.
func (o *Orchestrator) Start(ctx context.Context, req Request) (*Handle, error) {
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, req.Kind)
	}
	spec := tools[req.Kind]

	op := &operation{
		id:       uuid.NewString(),
		deviceID: req.DeviceID,
		kind:     req.Kind,
		done:     make(chan struct{}),
	}
	op.setState(StateValidating)

	o.mu.Lock()
	if _, busy := o.active[req.DeviceID]; busy {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrOperationInProgress, req.DeviceID)
	}
	o.active[req.DeviceID] = op
	o.mu.Unlock()

	go o.run(ctx, op, spec, req)

	return &Handle{op: op}, nil
}

// Cancel aborts the in-flight operation on a device. The child process is
// forcibly terminated, not merely abandoned.
func (o *Orchestrator) Cancel(deviceID, reason string) error {
	o.mu.Lock()
	op, ok := o.active[deviceID]
	o.mu.Unlock()

	if !ok {
		return fmt.Errorf("no active operation for device %s", deviceID)
	}
	if reason == "" {
		reason = "canceled by request"
	}

	op.abort(reason)
	return nil
}

// Active reports the state of the in-flight operation for a device, or
// StateIdle when none is running.
func (o *Orchestrator) Active(deviceID string) State {
	o.mu.Lock()
	defer o.mu.Unlock()

	if op, ok := o.active[deviceID]; ok {
		return State(op.state.Load())
	}
	return StateIdle
}

func (o *Orchestrator) onPublish(view *inventory.View) {
	present := make(map[string]bool, len(view.Devices))
	for _, dev := range view.Devices {
		present[dev.ID] = true
	}

	o.mu.Lock()
	var gone []*operation
	for id, op := range o.active {
		if !present[id] && State(op.state.Load()) == StateRunning {
			gone = append(gone, op)
		}
	}
	o.mu.Unlock()

	for _, op := range gone {
		slog.Warn("device disappeared mid-operation", "device", op.deviceID, "op", op.id)
		op.abort("device disappeared from rescan")
	}
}

func (o *Orchestrator) run(ctx context.Context, op *operation, spec *toolSpec, req Request) {
	startedAt := time.Now()

	defer func() {
		o.mu.Lock()
		delete(o.active, op.deviceID)
		o.mu.Unlock()
	}()

	finish := func(outcome store.Outcome, metrics map[string]string, cmdLine, rawLog, errText string) {
		res := &store.OperationResult{
			ID:        op.id,
			DeviceID:  op.deviceID,
			Kind:      op.kind,
			StartedAt: startedAt,
			EndedAt:   time.Now(),
			Outcome:   outcome,
			Metrics:   metrics,
			Command:   cmdLine,
			RawLog:    rawLog,
			Error:     errText,
		}

		if err := o.db.Append(res); err != nil {
			// The store holds the result in memory; never drop it.
			slog.Error("result append deferred", "op", op.id, "err", err)
		}
		o.inv.AttachResult(res)

		switch outcome {
		case store.OutcomeSuccess:
			op.setState(StateCompleted)
		case store.OutcomeAborted:
			op.setState(StateAborted)
		default:
			op.setState(StateFailed)
		}

		op.result = res
		close(op.done)

		slog.Info("operation finished", "op", op.id, "device", op.deviceID,
			"kind", op.kind, "outcome", outcome)

		if req.OnDone != nil {
			req.OnDone(res)
		}
	}

	// Validating: re-fetch the live classification; a verdict from a prior
	// scan is never trusted.
	dev, err := o.inv.Fresh(ctx, req.DeviceID)
	if err == nil {
		err = validate(dev, spec, req, o.inv.Classifier())
	}

	var pl *plan
	if err == nil {
		pl, err = spec.build(dev, req)
	}
	if err != nil {
		finish(store.OutcomeFailed, nil, "", "", err.Error())
		return
	}

	if reason, isAborted := op.aborted(); isAborted {
		finish(store.OutcomeAborted, pl.metrics, "", "", reason)
		return
	}

	op.setState(StateRunning)

	runCtx := ctx
	var cancel context.CancelFunc
	if t := spec.timeout(o.cfg); t > 0 {
		runCtx, cancel = context.WithTimeout(ctx, t)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	op.mu.Lock()
	op.cancel = cancel
	op.mu.Unlock()

	var rawLog bytes.Buffer
	cmdLines := make([]string, 0, len(pl.commands))
	exitOK := true

	for _, cmd := range pl.commands {
		name, args := execute.WithSudo(o.cfg.UseSudo, cmd[0], cmd[1:]...)
		cmdLines = append(cmdLines, strings.Join(append([]string{name}, args...), " "))

		proc, err := execute.Start(runCtx, name, args...)
		if err != nil {
			exitOK = false
			fmt.Fprintf(&rawLog, "start %s: %v\n", cmd[0], err)
			break
		}

		op.mu.Lock()
		op.proc = proc
		op.mu.Unlock()

		res := proc.Wait()
		rawLog.Write(res.Stdout)

		if !res.Success() {
			exitOK = false
			break
		}
	}

	cmdLine := strings.Join(cmdLines, " && ")

	if reason, isAborted := op.aborted(); isAborted {
		finish(store.OutcomeAborted, pl.metrics, cmdLine, rawLog.String(), reason)
		return
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		finish(store.OutcomeAborted, pl.metrics, cmdLine, rawLog.String(),
			fmt.Sprintf("timed out after %s", spec.timeout(o.cfg)))
		return
	}

	outcome, reason := spec.parse(rawLog.Bytes(), exitOK, pl.metrics)
	finish(outcome, pl.metrics, cmdLine, rawLog.String(), reason)
}

// validate is the non-bypassable gate. Failure here means no process is
// ever started for this request.
func validate(dev *inventory.Device, spec *toolSpec, req Request, cl *inventory.Classifier) error {
	if !dev.Resolved() || !utils.HasPrefix(dev.BlockPath, targetPrefixes) {
		return fmt.Errorf("%w: %s", ErrUnresolvedPath, dev.ID)
	}

	if spec.destructive(req) && !dev.EraseAllowed {
		return fmt.Errorf("%w: %s (origin=%s, system=%t)",
			ErrNotEligible, dev.ID, dev.Origin, dev.IsSystemDisk)
	}

	if spec.expertOnly(req) && !cl.VerifyPin(req.Pin) {
		return fmt.Errorf("%w: kind=%s preset=%s", ErrExpertRequired, req.Kind, req.Preset)
	}

	return nil
}
