package server

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/ledgerbridge/internal/clock"
	obscontext "github.com/smallbiznis/ledgerbridge/internal/observability/context"
	obslogger "github.com/smallbiznis/ledgerbridge/internal/observability/logger"
	"github.com/smallbiznis/ledgerbridge/internal/pipeline"
	"go.uber.org/zap"
)

// exportTask is the status of one dashboard-triggered account run.
type exportTask struct {
	ID         string                 `json:"id"`
	AccountID  string                 `json:"account_id"`
	Done       bool                   `json:"done"`
	Error      string                 `json:"error,omitempty"`
	Results    []pipeline.BatchResult `json:"results,omitempty"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt *time.Time             `json:"finished_at,omitempty"`
}

// taskRegistry tracks export tasks in process memory. Finished tasks are
// forgotten after retention.
type taskRegistry struct {
	mu        sync.Mutex
	clock     clock.Clock
	retention time.Duration
	tasks     map[string]*exportTask
}

func newTaskRegistry(clk clock.Clock, retention time.Duration) *taskRegistry {
	if clk == nil {
		clk = clock.New()
	}
	return &taskRegistry{clock: clk, retention: retention, tasks: map[string]*exportTask{}}
}

func (r *taskRegistry) start(accountID string) *exportTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock.Now()
	r.pruneLocked(now)
	task := &exportTask{
		ID:        ulid.Make().String(),
		AccountID: accountID,
		StartedAt: now,
	}
	r.tasks[task.ID] = task
	return task
}

func (r *taskRegistry) finish(id string, results []pipeline.BatchResult, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok {
		return
	}
	now := r.clock.Now()
	task.Done = true
	task.FinishedAt = &now
	task.Results = results
	if err != nil {
		task.Error = err.Error()
	}
}

func (r *taskRegistry) get(id string) (exportTask, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok {
		return exportTask{}, false
	}
	return *task, true
}

func (r *taskRegistry) pruneLocked(now time.Time) {
	if r.retention <= 0 {
		return
	}
	for id, task := range r.tasks {
		if task.FinishedAt != nil && now.Sub(*task.FinishedAt) > r.retention {
			delete(r.tasks, id)
		}
	}
}

// ExportAccount starts a background run of every document type of the
// account and answers with the task id to poll.
func (s *Server) ExportAccount(c *gin.Context) {
	ctx := c.Request.Context()
	account, err := s.accounts.Get(ctx, strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.limiter != nil {
		res, err := s.limiter.AllowExport(ctx, account.ID)
		if err != nil {
			s.log.Warn("server.export.limiter_failed", zap.String("account_id", account.ID), zap.Error(err))
		} else if !res.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			s.obsMetrics.RecordExportTask(ctx, "throttled")
			AbortWithError(c, ErrTooManyRequests)
			return
		}
	}

	task := s.tasks.start(account.ID)
	taskCtx := obscontext.WithTaskID(context.WithoutCancel(ctx), task.ID)
	log := obslogger.WithContext(taskCtx, s.log).With(zap.String("account_id", account.ID))
	log.Info("server.export.start", zap.String("account_name", account.Name))

	go func() {
		runCtx, cancel := context.WithTimeout(taskCtx, s.exportTimeout())
		defer cancel()

		results, err := s.exporter.ProcessAccountByID(runCtx, account.ID)
		s.tasks.finish(task.ID, results, err)
		if err != nil {
			s.obsMetrics.RecordExportTask(taskCtx, "failed")
			log.Error("server.export.failed", zap.Error(err))
			return
		}
		s.obsMetrics.RecordExportTask(taskCtx, "done")
		log.Info("server.export.done", zap.Int("batches", len(results)))
	}()

	c.JSON(http.StatusAccepted, gin.H{"task_id": task.ID})
}

func (s *Server) exportTimeout() time.Duration {
	if s.cfg.Sync.JobTimeout > 0 {
		return s.cfg.Sync.JobTimeout
	}
	return 10 * time.Minute
}

func (s *Server) GetTask(c *gin.Context) {
	task, ok := s.tasks.get(strings.TrimSpace(c.Param("id")))
	if !ok {
		c.JSON(http.StatusOK, gin.H{"exists": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"exists": true,
		"done":   task.Done,
		"error":  task.Error,
		"data":   task,
	})
}

func (s *Server) GetTaskLogs(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		AbortWithError(c, invalidRequestError())
		return
	}
	entries, err := s.taskLogs.Read(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries})
}
