// Package queue implements the Resolution Queue of SPEC_FULL.md §4.G: a
// durable, deduped, bounded-concurrency job queue over Redis, replicating
// BullMQ-style mechanics by hand (lists for pending work, a sorted set for
// backoff scheduling, a dead-letter set for exhausted jobs). No Go BullMQ
// client exists in the retrieved pack, so the primitives are built directly
// on go-redis the way the teacher's internal/cache/redis.go wraps the raw
// client rather than reaching for a job-queue library. Job bodies are
// stored as Redis-JSON blobs, generalized from internal/session's
// JSON-marshal-into-Redis idiom.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Job types, §4.G's job contract table.
const (
	TypeSetWinningChoice = "set_winning_choice"
	TypeWashBet          = "wash_bet"
	TypeRecordHistory    = "record_history"
)

const (
	keyPending   = "queue:pending"
	keyRetry     = "queue:retry"
	keyCompleted = "queue:completed"
	keyDead      = "queue:dead"
	keyJobPrefix = "queue:job:"
	keyDedup     = "queue:dedup:"

	maxAttempts      = 3
	baseBackoff      = 1 * time.Second
	completedRetain  = 1 * time.Hour
	completedMaxSize = 1000
	deadRetain       = 24 * time.Hour
	popTimeout       = 2 * time.Second
	retryPollEvery   = 500 * time.Millisecond
	janitorEvery     = 5 * time.Minute
)

// ErrUnknownJobType is returned by Enqueue/dispatch for a type with no
// registered handler.
var ErrUnknownJobType = errors.New("queue: no handler registered for job type")

// Job is a durable unit of work, §4.G's job contract table.
type Job struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	BetID     string          `json:"betId"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	CreatedAt time.Time       `json:"createdAt"`
}

// FailedJob pairs a dead-lettered job with the error that exhausted it,
// surfaced by the operator-action path §4.G's "Failure semantics" names.
type FailedJob struct {
	Job      Job       `json:"job"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failedAt"`
}

// EnqueueRequest describes a job to admit, keyed for dedup per §4.G
// "Per-bet ordering via dedup job ids".
type EnqueueRequest struct {
	Type     string
	BetID    string
	Payload  any
	DedupKey string // e.g. "resolve-<bet_id>" or "wash-<bet_id>"; empty skips dedup
}

// HandlerFunc processes one job. A returned error counts as an attempt
// failure and drives the retry/dead-letter decision.
type HandlerFunc func(ctx context.Context, job Job) error

// Queue is the bounded-concurrency worker pool described in §4.G and §5,
// generalized from MOHCentral-opm-stats-api/internal/worker/pool.go's
// worker-goroutine-per-slot shape (there: a shared channel fed by
// producers; here: Redis's BRPOP itself arbitrates which worker claims
// each job, since the durable queue lives in Redis rather than in
// process memory).
type Queue struct {
	client   *redis.Client
	logger   zerolog.Logger
	handlers map[string]HandlerFunc

	concurrency int

	wg       sync.WaitGroup
	draining chan struct{}
	drainOnce sync.Once
}

// New builds a Queue with the given bounded worker concurrency, §4.G
// "Workers run with bounded concurrency (default 5, configurable)".
func New(client *redis.Client, concurrency int, logger zerolog.Logger) *Queue {
	if concurrency <= 0 {
		concurrency = 5
	}
	return &Queue{
		client:      client,
		logger:      logger,
		handlers:    make(map[string]HandlerFunc),
		concurrency: concurrency,
		draining:    make(chan struct{}),
	}
}

// RegisterHandler binds a job type to its processing function. Call before
// Start; handlers are immutable once workers are running.
func (q *Queue) RegisterHandler(jobType string, fn HandlerFunc) {
	q.handlers[jobType] = fn
}

// Enqueue admits a job. If DedupKey is set and an earlier Enqueue claimed
// the same key within completedRetain, Enqueue is a no-op
// (first-writer-wins), §4.G. The claim is not released when that job
// completes or is dead-lettered, so the key stays blocked for the whole
// completedRetain window.
func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) error {
	if _, ok := q.handlers[req.Type]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJobType, req.Type)
	}

	if req.DedupKey != "" {
		ok, err := q.client.SetNX(ctx, keyDedup+req.DedupKey, "1", completedRetain).Result()
		if err != nil {
			return fmt.Errorf("queue: dedup check: %w", err)
		}
		if !ok {
			q.logger.Debug().Str("dedupKey", req.DedupKey).Msg("queue: duplicate job suppressed")
			return nil
		}
	}

	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return fmt.Errorf("queue: marshal payload: %w", err)
	}

	job := Job{
		ID:        uuid.NewString(),
		Type:      req.Type,
		BetID:     req.BetID,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	return q.push(ctx, job, keyPending)
}

func (q *Queue) push(ctx context.Context, job Job, listKey string) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal job: %w", err)
	}
	pipe := q.client.TxPipeline()
	pipe.Set(ctx, keyJobPrefix+job.ID, data, 0)
	pipe.LPush(ctx, listKey, job.ID)
	_, err = pipe.Exec(ctx)
	return err
}

// Depth reports the current pending-list length, consumed by
// internal/metrics for the queue-depth gauge.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, keyPending).Result()
}

// Start launches the worker pool plus the retry-promoter and janitor
// background loops. It returns immediately; call Drain for graceful
// shutdown.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.concurrency; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
	q.wg.Add(2)
	go q.retryPromoter(ctx)
	go q.janitor(ctx)
}

// Drain stops workers from claiming new jobs and waits for the workers,
// retry promoter and janitor to exit, §4.G "no new jobs picked up;
// in-flight jobs complete". It has no timeout of its own.
func (q *Queue) Drain() {
	q.drainOnce.Do(func() { close(q.draining) })
	q.wg.Wait()
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.draining:
			return
		case <-ctx.Done():
			return
		default:
		}

		res, err := q.client.BRPop(ctx, popTimeout, keyPending).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				q.logger.Warn().Err(err).Int("worker", id).Msg("queue: BRPOP failed")
			}
			continue
		}

		jobID := res[1]
		q.process(ctx, jobID)
	}
}

func (q *Queue) process(ctx context.Context, jobID string) {
	data, err := q.client.Get(ctx, keyJobPrefix+jobID).Bytes()
	if err != nil {
		q.logger.Warn().Err(err).Str("jobId", jobID).Msg("queue: job body missing, dropping")
		return
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		q.logger.Error().Err(err).Str("jobId", jobID).Msg("queue: corrupt job body, dropping")
		q.client.Del(ctx, keyJobPrefix+jobID)
		return
	}

	handler, ok := q.handlers[job.Type]
	if !ok {
		q.logger.Error().Str("jobId", jobID).Str("type", job.Type).Msg("queue: no handler registered")
		return
	}

	job.Attempts++
	runErr := handler(ctx, job)
	if runErr == nil {
		q.complete(ctx, job)
		return
	}

	if job.Attempts >= maxAttempts {
		q.logger.Error().Err(runErr).
			Str("jobId", job.ID).Str("betId", job.BetID).Str("type", job.Type).
			Int("attemptsMade", job.Attempts).
			Msg("queue: job exhausted retries, moved to dead-letter")
		q.deadLetter(ctx, job, runErr)
		return
	}

	q.logger.Warn().Err(runErr).
		Str("jobId", job.ID).Str("type", job.Type).Int("attempt", job.Attempts).
		Msg("queue: job failed, scheduling retry")
	q.scheduleRetry(ctx, job)
}

func (q *Queue) complete(ctx context.Context, job Job) {
	data, _ := json.Marshal(job)
	pipe := q.client.TxPipeline()
	pipe.Set(ctx, keyJobPrefix+job.ID, data, completedRetain)
	pipe.ZAdd(ctx, keyCompleted, redis.Z{Score: float64(time.Now().Unix()), Member: job.ID})
	pipe.ZRemRangeByRank(ctx, keyCompleted, 0, -int64(completedMaxSize)-1)
	if _, err := pipe.Exec(ctx); err != nil {
		q.logger.Warn().Err(err).Str("jobId", job.ID).Msg("queue: failed to record completion")
	}
}

func backoffFor(attempts int) time.Duration {
	d := baseBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
	}
	return d
}

func (q *Queue) scheduleRetry(ctx context.Context, job Job) {
	data, err := json.Marshal(job)
	if err != nil {
		q.logger.Error().Err(err).Str("jobId", job.ID).Msg("queue: marshal for retry failed")
		return
	}
	readyAt := time.Now().Add(backoffFor(job.Attempts))
	pipe := q.client.TxPipeline()
	pipe.Set(ctx, keyJobPrefix+job.ID, data, 0)
	pipe.ZAdd(ctx, keyRetry, redis.Z{Score: float64(readyAt.Unix()), Member: job.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		q.logger.Error().Err(err).Str("jobId", job.ID).Msg("queue: failed to schedule retry")
	}
}

func (q *Queue) deadLetter(ctx context.Context, job Job, cause error) {
	failed := FailedJob{Job: job, Error: cause.Error(), FailedAt: time.Now().UTC()}
	data, err := json.Marshal(failed)
	if err != nil {
		q.logger.Error().Err(err).Str("jobId", job.ID).Msg("queue: marshal dead-letter failed")
		return
	}
	pipe := q.client.TxPipeline()
	pipe.Del(ctx, keyJobPrefix+job.ID)
	pipe.HSet(ctx, keyDead+":entries", job.ID, data)
	pipe.ZAdd(ctx, keyDead, redis.Z{Score: float64(time.Now().Unix()), Member: job.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		q.logger.Error().Err(err).Str("jobId", job.ID).Msg("queue: failed to record dead-letter")
	}
}

// retryPromoter moves due retry entries back onto the pending list,
// mirroring the teacher's ticker-driven background-task idiom.
func (q *Queue) retryPromoter(ctx context.Context) {
	defer q.wg.Done()
	ticker := time.NewTicker(retryPollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-q.draining:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.promoteDueRetries(ctx)
		}
	}
}

func (q *Queue) promoteDueRetries(ctx context.Context) {
	now := float64(time.Now().Unix())
	ids, err := q.client.ZRangeByScore(ctx, keyRetry, &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%f", now)}).Result()
	if err != nil || len(ids) == 0 {
		return
	}
	for _, id := range ids {
		pipe := q.client.TxPipeline()
		pipe.ZRem(ctx, keyRetry, id)
		pipe.LPush(ctx, keyPending, id)
		if _, err := pipe.Exec(ctx); err != nil {
			q.logger.Warn().Err(err).Str("jobId", id).Msg("queue: failed to promote retry")
		}
	}
}

// janitor trims the completed and dead-letter sets to their retention
// windows, §4.G "Completed jobs are retained 1h/1000 items; failed jobs
// 24h for inspection".
func (q *Queue) janitor(ctx context.Context) {
	defer q.wg.Done()
	ticker := time.NewTicker(janitorEvery)
	defer ticker.Stop()
	for {
		select {
		case <-q.draining:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.trimRetention(ctx)
		}
	}
}

func (q *Queue) trimRetention(ctx context.Context) {
	completedCutoff := float64(time.Now().Add(-completedRetain).Unix())
	if err := q.client.ZRemRangeByScore(ctx, keyCompleted, "-inf", fmt.Sprintf("%f", completedCutoff)).Err(); err != nil {
		q.logger.Warn().Err(err).Msg("queue: completed retention trim failed")
	}

	deadCutoff := float64(time.Now().Add(-deadRetain).Unix())
	expired, err := q.client.ZRangeByScore(ctx, keyDead, &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%f", deadCutoff)}).Result()
	if err != nil || len(expired) == 0 {
		return
	}
	pipe := q.client.TxPipeline()
	for _, id := range expired {
		pipe.ZRem(ctx, keyDead, id)
		pipe.HDel(ctx, keyDead+":entries", id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		q.logger.Warn().Err(err).Msg("queue: dead-letter retention trim failed")
	}
}

// FailedJobs lists jobs currently in the dead-letter set, the operator
// inspection surface §4.G's "Failure semantics" requires.
func (q *Queue) FailedJobs(ctx context.Context) ([]FailedJob, error) {
	ids, err := q.client.ZRevRange(ctx, keyDead, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: list dead-letter ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	raws, err := q.client.HMGet(ctx, keyDead+":entries", ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: fetch dead-letter entries: %w", err)
	}
	out := make([]FailedJob, 0, len(raws))
	for _, raw := range raws {
		s, ok := raw.(string)
		if !ok {
			continue
		}
		var f FailedJob
		if err := json.Unmarshal([]byte(s), &f); err != nil {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

// Requeue moves a dead-lettered job back onto the pending list with its
// attempt counter reset, the operator-action path §4.G names but leaves
// HTTP-routeless.
func (q *Queue) Requeue(ctx context.Context, jobID string) error {
	raw, err := q.client.HGet(ctx, keyDead+":entries", jobID).Result()
	if err != nil {
		return fmt.Errorf("queue: requeue lookup: %w", err)
	}
	var failed FailedJob
	if err := json.Unmarshal([]byte(raw), &failed); err != nil {
		return fmt.Errorf("queue: requeue decode: %w", err)
	}
	failed.Job.Attempts = 0

	pipe := q.client.TxPipeline()
	pipe.HDel(ctx, keyDead+":entries", jobID)
	pipe.ZRem(ctx, keyDead, jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue: requeue cleanup: %w", err)
	}
	return q.push(ctx, failed.Job, keyPending)
}
