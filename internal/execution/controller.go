// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package execution runs notebook cells against a query engine and records
// their outputs in the document store.
//
// Every notebook has at most one worker goroutine. Runs for the same notebook
// queue behind each other in arrival order; runs for different notebooks
// proceed independently. Inside a run the cells execute one at a time in
// increasing index order, and a failing cell does not stop the ones after it.
// Cancelling a run (through its context or Stop) records a Cancelled error on
// the cell in flight and leaves the cells that had not started untouched.
package execution

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"qlnotebook/cli/internal/engine"
	qlerrors "qlnotebook/cli/internal/errors"
	"qlnotebook/cli/internal/metrics"
	"qlnotebook/cli/internal/notebook"
	"qlnotebook/cli/internal/output"
	"qlnotebook/cli/internal/resultset"
	"qlnotebook/cli/internal/store"

	"github.com/google/uuid"
)

// Error output names and messages written by the controller.
const (
	ErrorNameEngine    = "EngineFailure"
	ErrorNameCancelled = "Cancelled"
	FallbackMessage    = "query evaluation failed"
	CancelledMessage   = "execution cancelled"
)

// DefaultPageSize is used when Options.PageSize is not positive.
const DefaultPageSize = 100

// Options configures a Controller.
type Options struct {
	// By default every preceding code cell is evaluated together with the
	// target. NoCumulative evaluates the target cell on its own.
	NoCumulative bool
	// PageSize bounds the rows decoded into a result-reference output.
	PageSize int
	// Database identifies the database the engine queries. It is passed to
	// the engine and recorded in the execution metadata.
	Database string
	// EngineName labels metrics.
	EngineName string
	// Progress receives engine progress for the cell at the given index.
	Progress func(cell int, p engine.Progress)
	// OnTask is called after each task reaches a final outcome.
	OnTask func(t Task)
	Logger *slog.Logger
}

// Controller executes cells of the notebooks held in a store.
type Controller struct {
	store   *store.Store
	engine  engine.Engine
	decoder engine.ResultDecoder
	opts    Options
	logger  *slog.Logger

	mu     sync.Mutex
	queues map[string]*queue
}

type queue struct {
	pending []*job
	running bool
	current *job
}

type job struct {
	ctx     context.Context
	cancel  context.CancelFunc
	indices []int
	report  *Report
	done    chan struct{}
}

// New creates a controller.
func New(s *store.Store, e engine.Engine, d engine.ResultDecoder, opts Options) *Controller {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}
	return &Controller{
		store:   s,
		engine:  e,
		decoder: d,
		opts:    opts,
		logger:  logger,
		queues:  make(map[string]*queue),
	}
}

// RunCell executes a single cell.
func (c *Controller) RunCell(ctx context.Context, uri string, index int) (*Report, error) {
	return c.Run(ctx, uri, []int{index})
}

// RunAll executes every code cell of the notebook.
func (c *Controller) RunAll(ctx context.Context, uri string) (*Report, error) {
	doc, err := c.store.Snapshot(uri)
	if err != nil {
		return nil, err
	}
	indices := make([]int, 0, len(doc.Cells))
	for i := range doc.Cells {
		indices = append(indices, i)
	}
	return c.Run(ctx, uri, indices)
}

// Run executes the given cells of an open notebook and waits for the run to
// finish. Duplicate indices run once; markup cells are ignored. The returned
// report lists one task per executed code cell in execution order.
func (c *Controller) Run(ctx context.Context, uri string, indices []int) (*Report, error) {
	doc, err := c.store.Snapshot(uri)
	if err != nil {
		return nil, err
	}
	targets, err := selectCells(doc, indices)
	if err != nil {
		return nil, err
	}

	jctx, cancel := context.WithCancel(ctx)
	j := &job{
		ctx:     jctx,
		cancel:  cancel,
		indices: targets,
		report:  &Report{URI: uri},
		done:    make(chan struct{}),
	}
	c.enqueue(uri, j)
	select {
	case <-j.done:
	case <-ctx.Done():
		if c.dequeue(uri, j) {
			c.skip(j)
			break
		}
		// Already running; its context is derived from ctx.
		<-j.done
	}
	cancel()
	return j.report, nil
}

func selectCells(doc *notebook.Document, indices []int) ([]int, error) {
	sorted := slices.Clone(indices)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	out := make([]int, 0, len(sorted))
	for _, i := range sorted {
		if i < 0 || i >= len(doc.Cells) {
			return nil, fmt.Errorf("cell %d does not exist in %s", i, doc.URI)
		}
		if doc.Cells[i].Kind == notebook.Code {
			out = append(out, i)
		}
	}
	return out, nil
}

// Stop cancels the running and queued runs of a notebook.
func (c *Controller) Stop(uri string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.queues[uri]
	if !ok {
		return
	}
	if q.current != nil {
		q.current.cancel()
	}
	for _, j := range q.pending {
		j.cancel()
	}
}

func (c *Controller) enqueue(uri string, j *job) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.queues[uri]
	if !ok {
		q = &queue{}
		c.queues[uri] = q
	}
	q.pending = append(q.pending, j)
	if !q.running {
		q.running = true
		go c.work(uri, q)
	}
}

// dequeue removes a job that has not started yet. It reports false when the
// job is already running or finished.
func (c *Controller) dequeue(uri string, j *job) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.queues[uri]
	if !ok {
		return false
	}
	i := slices.Index(q.pending, j)
	if i < 0 {
		return false
	}
	q.pending = slices.Delete(q.pending, i, i+1)
	return true
}

// skip reports every task of a job that never reached the worker as skipped.
func (c *Controller) skip(j *job) {
	j.plan()
	for _, t := range j.report.Tasks {
		t.Outcome = Skipped
		c.finish(t)
	}
}

// work drains the queue of one notebook and exits when it is empty.
func (c *Controller) work(uri string, q *queue) {
	for {
		c.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			q.current = nil
			delete(c.queues, uri)
			c.mu.Unlock()
			return
		}
		j := q.pending[0]
		q.pending = q.pending[1:]
		q.current = j
		c.mu.Unlock()

		c.execute(uri, j)
		close(j.done)
	}
}

func (j *job) plan() {
	for pos, idx := range j.indices {
		t := &Task{ID: uuid.New(), CellIndex: idx, Order: pos + 1}
		j.report.Tasks = append(j.report.Tasks, t)
	}
}

func (c *Controller) execute(uri string, j *job) {
	j.plan()
	for _, t := range j.report.Tasks {
		if j.ctx.Err() != nil {
			t.Outcome = Skipped
			c.finish(t)
			continue
		}
		c.runTask(j.ctx, uri, t)
		c.finish(t)
	}
}

func (c *Controller) finish(t *Task) {
	if t.Outcome != Skipped {
		metrics.ObserveCell(c.opts.EngineName, t.Outcome.String(), t.Duration())
	}
	c.logger.Debug("cell finished", "cell", t.CellIndex, "order", t.Order, "outcome", t.Outcome.String(), "task", t.ID.String())
	if c.opts.OnTask != nil {
		c.opts.OnTask(*t)
	}
}

type engineReply struct {
	res *engine.Result
	err error
}

func (c *Controller) runTask(ctx context.Context, uri string, t *Task) {
	t.StartedAt = time.Now()
	doc, err := c.store.Snapshot(uri)
	if err != nil {
		t.FinishedAt = time.Now()
		t.Outcome, t.Err = Failed, err
		return
	}
	if t.CellIndex >= len(doc.Cells) {
		t.FinishedAt = time.Now()
		t.Outcome, t.Err = Failed, fmt.Errorf("cell %d no longer exists", t.CellIndex)
		return
	}

	q := engine.Query{Database: c.opts.Database}
	if !c.opts.NoCumulative {
		q.Source = doc.CodeSources(t.CellIndex)
	} else {
		q.Source = []string{doc.Cells[t.CellIndex].Source}
	}

	var progress engine.ProgressFunc
	if c.opts.Progress != nil {
		idx := t.CellIndex
		progress = func(p engine.Progress) { c.opts.Progress(idx, p) }
	}

	replies := make(chan engineReply, 1)
	go func() {
		res, err := c.engine.CompileAndRun(ctx, q, progress)
		replies <- engineReply{res: res, err: err}
	}()

	var out output.Output
	select {
	case <-ctx.Done():
		t.Outcome = Cancelled
		t.Err = qlerrors.Wrap(qlerrors.Cancelled, CancelledMessage, ctx.Err())
		out = output.Error{Name: ErrorNameCancelled, Message: CancelledMessage, Traceback: []string{}}
	case r := <-replies:
		out = c.outcome(ctx, t, r)
	}
	t.FinishedAt = time.Now()

	order := t.Order
	err = c.store.UpdateCell(uri, t.CellIndex, func(cell *notebook.Cell) {
		cell.Outputs = []output.Output{out}
		cell.ExecutionOrder = &order
	})
	if err != nil {
		c.logger.Warn("cell output not recorded", "uri", uri, "cell", t.CellIndex, "error", err)
		if t.Err == nil {
			t.Err = err
		}
	}
}

// outcome turns an engine reply into the cell's output and sets the task
// outcome.
func (c *Controller) outcome(ctx context.Context, t *Task, r engineReply) output.Output {
	fail := func(err error) output.Output {
		if ctx.Err() != nil {
			t.Outcome = Cancelled
			t.Err = qlerrors.Wrap(qlerrors.Cancelled, CancelledMessage, ctx.Err())
			return output.Error{Name: ErrorNameCancelled, Message: CancelledMessage, Traceback: []string{}}
		}
		t.Outcome = Failed
		t.Err = qlerrors.Wrap(qlerrors.EngineFailure, FallbackMessage, err)
		return output.FromError(ErrorNameEngine, err, FallbackMessage)
	}

	if r.err != nil {
		return fail(r.err)
	}
	if r.res == nil || r.res.Type != engine.Success {
		msg := ""
		if r.res != nil {
			msg = r.res.Message
		}
		if msg == "" {
			msg = FallbackMessage
		}
		return fail(errors.New(msg))
	}

	rs, name, err := c.firstResultSet(ctx, r.res.ResultsPath)
	if err != nil {
		return fail(err)
	}
	ref := resultset.Reference{
		ResultSet: *rs,
		ExecutionMetadata: resultset.ExecutionMetadata{
			Database:       c.opts.Database,
			ResultsPath:    r.res.ResultsPath,
			ResultSetName:  name,
			ExecutionOrder: t.Order,
			StartTime:      t.StartedAt.UTC(),
			EndTime:        time.Now().UTC(),
		},
	}
	display, err := output.NewResultReference(ref)
	if err != nil {
		return fail(err)
	}
	t.Outcome = Succeeded
	return display
}

// releaser is implemented by decoders that cache decoded results files.
type releaser interface {
	Forget(path string)
}

// firstResultSet decodes the first result set of a results file. A file
// without result sets yields an empty set. The page is copied into the cell
// output, so a caching decoder may drop the file afterwards.
func (c *Controller) firstResultSet(ctx context.Context, path string) (*resultset.ResultSet, string, error) {
	if r, ok := c.decoder.(releaser); ok {
		defer r.Forget(path)
	}
	names, err := c.decoder.ResultSetInfo(ctx, path, c.opts.PageSize)
	if err != nil {
		return nil, "", err
	}
	if len(names) == 0 {
		return resultset.New("", nil).Page(c.opts.PageSize), "", nil
	}
	rs, err := c.decoder.DecodeResultSet(ctx, path, names[0], c.opts.PageSize)
	if err != nil {
		return nil, "", err
	}
	return rs.Page(c.opts.PageSize), names[0], nil
}
