package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/FocuswithJustin/vmr2tei/core/engine"
	cerrors "github.com/FocuswithJustin/vmr2tei/core/errors"
	"github.com/FocuswithJustin/vmr2tei/internal/logging"
)

// JobStatus represents the current state of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Finished reports whether the job has reached a final state.
func (s JobStatus) Finished() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

var errJobFinished = errors.New("job already finished")

// Job is an asynchronous conversion. Progress runs from 0 to 100.
type Job struct {
	ID          string         `json:"id"`
	Status      JobStatus      `json:"status"`
	Stage       string         `json:"stage,omitempty"`
	Progress    int            `json:"progress"`
	Result      *ConvertResult `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	ErrorCode   string         `json:"error_code,omitempty"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`
	CompletedAt string         `json:"completed_at,omitempty"`

	finished time.Time
	cancel   context.CancelFunc
}

// JobStore keeps jobs in memory. Finished jobs are dropped by Sweep once
// they are older than the TTL.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	ttl  time.Duration
	now  func() time.Time
}

// NewJobStore creates a job store.
func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{jobs: make(map[string]*Job), ttl: ttl, now: time.Now}
}

func (s *JobStore) stamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

// Create registers a pending job. The returned context is cancelled when the
// job is cancelled or parent is done.
func (s *JobStore) Create(parent context.Context) (Job, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	now := s.stamp()
	job := &Job{
		ID:        uuid.NewString(),
		Status:    JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		cancel:    cancel,
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	return *job, ctx
}

// Get returns a copy of a job.
func (s *JobStore) Get(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Update applies fn to a job that has not finished and returns the result.
// Updates to finished jobs are ignored so a cancellation is never
// overwritten by a late progress report.
func (s *JobStore) Update(id string, fn func(*Job)) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status.Finished() {
		return Job{}, false
	}
	fn(job)
	job.UpdatedAt = s.stamp()
	if job.Status.Finished() {
		job.CompletedAt = job.UpdatedAt
		job.finished = s.now()
		job.cancel()
	}
	return *job, true
}

// Cancel stops a pending or running job.
func (s *JobStore) Cancel(id string) (Job, error) {
	out, ok := s.Update(id, func(j *Job) {
		j.Status = JobStatusCancelled
		j.Error = "cancelled by request"
	})
	if ok {
		return out, nil
	}
	if _, exists := s.Get(id); !exists {
		return Job{}, cerrors.NewNotFound("job", id)
	}
	return Job{}, errJobFinished
}

// Delete removes a finished job.
func (s *JobStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return cerrors.NewNotFound("job", id)
	}
	if !job.Status.Finished() {
		return errors.New("job is still running")
	}
	delete(s.jobs, id)
	return nil
}

// List returns copies of all jobs, oldest first.
func (s *JobStore) List() []Job {
	s.mu.RLock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, k int) bool {
		if out[i].CreatedAt != out[k].CreatedAt {
			return out[i].CreatedAt < out[k].CreatedAt
		}
		return out[i].ID < out[k].ID
	})
	return out
}

// Len returns the number of stored jobs.
func (s *JobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Sweep drops jobs that finished more than the TTL ago and returns how many
// were dropped.
func (s *JobStore) Sweep() int {
	cutoff := s.now().Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, j := range s.jobs {
		if j.Status.Finished() && j.finished.Before(cutoff) {
			delete(s.jobs, id)
			n++
		}
	}
	return n
}

// percent maps engine progress onto 0-100: collation takes most of the run.
func percent(p engine.Progress) int {
	switch p.Stage {
	case engine.StageCollate:
		if p.Total == 0 {
			return 0
		}
		return 80 * p.Done / p.Total
	case engine.StageBuild:
		return 80 + 10*p.Done
	case engine.StageSerialize:
		return 90 + 9*p.Done
	}
	return 0
}

// runJob converts in the background, reporting progress to the job and to
// WebSocket clients.
func (s *Server) runJob(ctx context.Context, id string, req *ConvertRequest) {
	defer s.wg.Done()

	if job, ok := s.jobs.Update(id, func(j *Job) { j.Status = JobStatusRunning }); ok {
		logging.JobEvent(job.ID, string(job.Status))
	}
	progress := func(p engine.Progress) {
		pct := percent(p)
		s.jobs.Update(id, func(j *Job) {
			j.Stage = p.Stage
			j.Progress = max(j.Progress, pct)
		})
		s.hub.Broadcast(ProgressMessage{
			Type: MessageProgress, JobID: id, Stage: p.Stage,
			Done: p.Done, Total: p.Total, Progress: pct,
		})
	}

	res, _, err := s.convert(ctx, req, progress)
	job, ok := s.jobs.Update(id, func(j *Job) {
		switch {
		case err == nil:
			j.Status, j.Progress, j.Result = JobStatusCompleted, 100, res
		case ctx.Err() != nil:
			j.Status, j.Error = JobStatusCancelled, ctx.Err().Error()
		default:
			_, code := classify(err)
			j.Status, j.Error, j.ErrorCode = JobStatusFailed, err.Error(), code
		}
	})
	if !ok {
		// Cancelled through the API while running.
		job, _ = s.jobs.Get(id)
	}
	logging.JobEvent(id, string(job.Status), "error", job.Error)

	msg := ProgressMessage{JobID: id, Progress: job.Progress, Message: job.Error}
	switch job.Status {
	case JobStatusCompleted:
		msg.Type, msg.Message = MessageComplete, "conversion complete"
		msg.Data = map[string]any{"blake3": res.Digest, "units": res.Units, "failures": len(res.Failures)}
	case JobStatusCancelled:
		msg.Type = MessageCancelled
	default:
		msg.Type = MessageError
	}
	s.hub.Broadcast(msg)
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	if _, err := req.Options.apply(s.cfg.Engine); err != nil {
		respondErr(w, err)
		return
	}

	job, ctx := s.jobs.Create(s.ctx)
	logging.JobEvent(job.ID, string(job.Status), "request_id", logging.RequestID(r.Context()))
	s.wg.Add(1)
	go s.runJob(ctx, job.ID, req)

	w.Header().Set("Location", "/api/jobs/"+job.ID)
	respond(w, http.StatusAccepted, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	respondList(w, s.jobs.List())
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, ok := s.jobs.Get(id)
	if !ok {
		respondErr(w, cerrors.NewNotFound("job", id))
		return
	}
	respond(w, http.StatusOK, job)
}

// handleDeleteJob cancels a pending or running job and discards a finished
// one.
func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.jobs.Cancel(id)
	switch {
	case err == nil:
		logging.JobEvent(id, string(job.Status))
		respond(w, http.StatusOK, job)
	case errors.Is(err, errJobFinished):
		if err := s.jobs.Delete(id); err != nil {
			respondErr(w, err)
			return
		}
		respond(w, http.StatusOK, map[string]string{"id": id, "message": "job deleted"})
	default:
		respondErr(w, err)
	}
}
