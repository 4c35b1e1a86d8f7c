package synthesis

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/iradio/internal/observability"
	"github.com/ent0n29/iradio/internal/voice"
)

var ErrJobNotFound = errors.New("job not found")

const finishedJobsRetained = 64

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Snapshot is a point-in-time copy of a job.
type Snapshot struct {
	ID          string     `json:"id"`
	Book        string     `json:"book"`
	Voice       string     `json:"voice"`
	VoiceID     string     `json:"voice_id"`
	Provider    string     `json:"provider"`
	Status      Status     `json:"status"`
	TotalChunks int        `json:"total_chunks"`
	DoneChunks  int        `json:"done_chunks"`
	Files       []string   `json:"files"`
	AudioSecs   float64    `json:"audio_seconds"`
	Error       string     `json:"error,omitempty"`
	FailedIndex int        `json:"failed_index,omitempty"`
	FailureKind string     `json:"failure_kind,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

func (s Snapshot) Finished() bool { return s.Status != StatusRunning }

func (s Snapshot) clone() Snapshot {
	out := s
	out.Files = append([]string(nil), s.Files...)
	if s.EndedAt != nil {
		t := *s.EndedAt
		out.EndedAt = &t
	}
	return out
}

// Event is published to subscribers on every state change.
type Event struct {
	Type string   `json:"type"`
	Job  Snapshot `json:"job"`
}

// Job is the handle of one background synthesis run.
type Job struct {
	mu      sync.Mutex
	snap    Snapshot
	done    chan struct{}
	subs    map[int]chan Event
	nextSub int
}

func (j *Job) ID() string { return j.snap.ID }

// Done is closed when the job completes or fails.
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the job finishes or ctx ends; either way it returns the
// latest snapshot.
func (j *Job) Wait(ctx context.Context) (Snapshot, error) {
	select {
	case <-j.done:
		return j.Snapshot(), nil
	case <-ctx.Done():
		return j.Snapshot(), ctx.Err()
	}
}

func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snap.clone()
}

// Subscribe streams events until the job finishes; the channel is then
// closed. Subscribing to a finished job yields its final event only.
func (j *Job) Subscribe() (<-chan Event, func()) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.snap.Finished() {
		ch := make(chan Event, 1)
		ch <- Event{Type: string(j.snap.Status), Job: j.snap.clone()}
		close(ch)
		return ch, func() {}
	}
	ch := make(chan Event, 64)
	ch <- Event{Type: "snapshot", Job: j.snap.clone()}
	j.nextSub++
	id := j.nextSub
	j.subs[id] = ch
	return ch, func() {
		j.mu.Lock()
		defer j.mu.Unlock()
		if c, ok := j.subs[id]; ok {
			delete(j.subs, id)
			close(c)
		}
	}
}

func (j *Job) update(eventType string, fn func(*Snapshot)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	fn(&j.snap)
	evt := Event{Type: eventType, Job: j.snap.clone()}
	if !j.snap.Finished() {
		for _, ch := range j.subs {
			select {
			case ch <- evt:
			default:
			}
		}
		return
	}
	for id, ch := range j.subs {
		sendFinal(ch, evt)
		delete(j.subs, id)
		close(ch)
	}
	close(j.done)
}

// sendFinal delivers the terminal event to a subscriber that may be behind,
// evicting its oldest pending event when the buffer is full. Only update
// writes to subscriber channels, under j.mu, so the second send never blocks.
func sendFinal(ch chan Event, evt Event) {
	select {
	case ch <- evt:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- evt
}

// Runner produces the segments of one book.
type Runner interface {
	Generate(ctx context.Context, req Request) ([]string, error)
}

// Jobs runs generation in the background, at most one job per book and voice.
type Jobs struct {
	mu       sync.Mutex
	ctx      context.Context
	runner   Runner
	provider string
	metrics  *observability.Metrics
	jobs     map[string]*Job
	active   map[string]string
	wg       sync.WaitGroup
}

// NewJobs binds jobs to ctx; jobs are not cancelled by the HTTP request that
// started them.
func NewJobs(ctx context.Context, runner Runner, provider string, metrics *observability.Metrics) *Jobs {
	return &Jobs{
		ctx:      ctx,
		runner:   runner,
		provider: provider,
		metrics:  metrics,
		jobs:     make(map[string]*Job),
		active:   make(map[string]string),
	}
}

// Start launches a job, or returns the running one for the same book and
// voice with existing=true.
func (m *Jobs) Start(book string, v voice.Voice) (job *Job, existing bool) {
	key := book + "\x00" + v.ID

	m.mu.Lock()
	if id, ok := m.active[key]; ok {
		if j := m.jobs[id]; j != nil {
			m.mu.Unlock()
			return j, true
		}
	}
	m.pruneLocked()
	job = &Job{
		snap: Snapshot{
			ID:        uuid.NewString(),
			Book:      book,
			Voice:     v.Label,
			VoiceID:   v.ID,
			Provider:  m.provider,
			Status:    StatusRunning,
			Files:     []string{},
			StartedAt: time.Now().UTC(),
		},
		done: make(chan struct{}),
		subs: make(map[int]chan Event),
	}
	m.jobs[job.snap.ID] = job
	m.active[key] = job.snap.ID
	m.mu.Unlock()

	m.metrics.JobStarted()
	log.Printf("synthesis job %s started: book=%s voice=%s provider=%s", job.snap.ID, book, v.Label, m.provider)
	m.wg.Add(1)
	go m.run(job, key, v)
	return job, false
}

func (m *Jobs) run(job *Job, key string, v voice.Voice) {
	defer m.wg.Done()
	snap := job.Snapshot()
	files, err := m.runner.Generate(m.ctx, Request{
		Book:  snap.Book,
		Voice: v,
		Progress: func(p Progress) {
			job.update("progress", func(s *Snapshot) {
				s.TotalChunks = p.Total
				if p.File != "" {
					s.DoneChunks = p.Index
					s.Files = append(s.Files, p.File)
					s.AudioSecs += p.Seconds
				}
			})
		},
	})

	m.mu.Lock()
	delete(m.active, key)
	m.mu.Unlock()

	now := time.Now().UTC()
	if err != nil {
		job.update(string(StatusFailed), func(s *Snapshot) {
			s.Status = StatusFailed
			s.Error = err.Error()
			s.EndedAt = &now
			s.Files = append([]string(nil), files...)
			s.DoneChunks = len(files)
			var ce *ChunkError
			if errors.As(err, &ce) {
				s.FailedIndex = ce.Index
				s.FailureKind = string(ce.Kind)
			}
		})
		m.metrics.JobFinished(string(StatusFailed))
		log.Printf("synthesis job %s failed after %d files: %v", snap.ID, len(files), err)
		return
	}
	job.update(string(StatusCompleted), func(s *Snapshot) {
		s.Status = StatusCompleted
		s.EndedAt = &now
		s.Files = append([]string(nil), files...)
		s.DoneChunks = len(files)
	})
	m.metrics.JobFinished(string(StatusCompleted))
	log.Printf("synthesis job %s completed: %d files", snap.ID, len(files))
}

func (m *Jobs) Get(id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[strings.TrimSpace(id)]
	if !ok {
		return nil, ErrJobNotFound
	}
	return j, nil
}

// List returns all retained jobs, newest first.
func (m *Jobs) List() []Snapshot {
	m.mu.Lock()
	jobs := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, j)
	}
	m.mu.Unlock()

	out := make([]Snapshot, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Snapshot())
	}
	sort.Slice(out, func(i, k int) bool { return out[i].StartedAt.After(out[k].StartedAt) })
	return out
}

// Wait blocks until every running job has finished or ctx ends.
func (m *Jobs) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Jobs) pruneLocked() {
	finished := make([]Snapshot, 0, len(m.jobs))
	for _, j := range m.jobs {
		if s := j.Snapshot(); s.Finished() {
			finished = append(finished, s)
		}
	}
	if len(finished) < finishedJobsRetained {
		return
	}
	sort.Slice(finished, func(i, k int) bool { return finished[i].StartedAt.Before(finished[k].StartedAt) })
	for _, s := range finished[:len(finished)-finishedJobsRetained+1] {
		delete(m.jobs, s.ID)
	}
}
