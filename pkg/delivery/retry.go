package delivery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"tendbot/pkg/logger"
)

// Outcome is the immediate result of an enqueue.
type Outcome string

const (
	// OutcomeDelivered means the first attempt succeeded.
	OutcomeDelivered Outcome = "delivered"
	// OutcomeQueued means the send failed transiently and was queued
	// for retry.
	OutcomeQueued Outcome = "queued"
	// OutcomeFailed means the failure was terminal and nothing was
	// queued.
	OutcomeFailed Outcome = "failed"
)

// SendFunc performs one delivery attempt.
type SendFunc func(ctx context.Context) error

// Key identifies a retry-ordering domain. Retries for the same
// channel+recipient are FIFO relative to each other; different keys
// never block one another.
type Key struct {
	Channel   string
	Recipient string
}

func (k Key) String() string {
	return k.Channel + "/" + k.Recipient
}

// Result reports what happened to an enqueued send.
type Result struct {
	Outcome  Outcome
	Attempts int
	Kind     FailureKind
	Err      error
}

// QueuedMessage is one send awaiting retry.
type QueuedMessage struct {
	Key          Key
	Description  string // short payload description for logs
	Attempts     int
	MaxAttempts  int
	NextEligible time.Time
	History      []string // failure reasons, oldest first

	send SendFunc
}

// Config tunes the retry queue.
type Config struct {
	MaxAttempts     int
	BaseDelay       time.Duration // doubles per attempt
	MaxDelay        time.Duration // backoff cap
	DeadLetterLimit int
	QueueDepth      int // per-recipient pending sends
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 4
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.DeadLetterLimit <= 0 {
		c.DeadLetterLimit = 200
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = 64
	}
	return c
}

// Manager executes sends with bounded retry and per-recipient FIFO
// ordering. Failed-for-good messages land in an in-memory dead-letter
// log; durable storage of that log is an external collaborator.
type Manager struct {
	log *logger.Logger
	cfg Config

	mu     sync.Mutex
	queues map[Key]chan *QueuedMessage

	deadMu sync.Mutex
	dead   []DeadLetter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// notify observes final retry results. Optional.
	notifyMu sync.RWMutex
	notify   func(msg *QueuedMessage, res Result)
}

// DeadLetter records a message whose retries were exhausted.
type DeadLetter struct {
	Key         Key
	Description string
	Attempts    int
	History     []string
	At          time.Time
}

// NewManager creates a retry manager.
func NewManager(log *logger.Logger, cfg Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		log:    log,
		cfg:    cfg.withDefaults(),
		queues: make(map[Key]chan *QueuedMessage),
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetNotifier installs an observer for final retry results.
func (m *Manager) SetNotifier(fn func(msg *QueuedMessage, res Result)) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	m.notify = fn
}

// Stop drains workers and rejects further enqueues.
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
}

// Enqueue executes send immediately. On transient failure the message
// is queued behind earlier sends to the same key; terminal failures are
// reported at once and never retried.
func (m *Manager) Enqueue(ctx context.Context, key Key, description string, send SendFunc) Result {
	err := send(ctx)
	if err == nil {
		return Result{Outcome: OutcomeDelivered, Attempts: 1}
	}

	kind := Classify(err)
	if !kind.Retryable() {
		m.log.Warn("Terminal delivery failure",
			zap.String("key", key.String()),
			zap.String("kind", string(kind)),
			zap.Error(err))
		return Result{Outcome: OutcomeFailed, Attempts: 1, Kind: kind, Err: err}
	}

	msg := &QueuedMessage{
		Key:          key,
		Description:  description,
		Attempts:     1,
		MaxAttempts:  m.cfg.MaxAttempts,
		NextEligible: time.Now().Add(m.backoff(1)),
		History:      []string{err.Error()},
		send:         send,
	}

	select {
	case m.queue(key) <- msg:
		m.log.Info("Queued for retry",
			zap.String("key", key.String()),
			zap.Int("attempt", msg.Attempts),
			zap.Error(err))
		return Result{Outcome: OutcomeQueued, Attempts: 1, Kind: kind, Err: err}
	default:
		// Queue overflow is terminal; the message is dead-lettered so
		// the failure stays visible.
		overflow := fmt.Errorf("retry queue full for %s", key)
		m.deadLetter(msg, KindTerminal, overflow)
		return Result{Outcome: OutcomeFailed, Attempts: 1, Kind: KindTerminal, Err: overflow}
	}
}

// queue returns the FIFO worker queue for a key, starting its worker on
// first use.
func (m *Manager) queue(key Key) chan *QueuedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	if q, ok := m.queues[key]; ok {
		return q
	}

	q := make(chan *QueuedMessage, m.cfg.QueueDepth)
	m.queues[key] = q

	m.wg.Add(1)
	go m.worker(q)
	return q
}

// worker retries queued messages for a single key in FIFO order.
func (m *Manager) worker(q chan *QueuedMessage) {
	defer m.wg.Done()

	for {
		select {
		case msg := <-q:
			m.retry(msg)
		case <-m.ctx.Done():
			return
		}
	}
}

// retry drives one message to success, terminal failure, or exhaustion.
func (m *Manager) retry(msg *QueuedMessage) {
	for {
		if !m.sleepUntil(msg.NextEligible) {
			return
		}

		msg.Attempts++
		err := msg.send(m.ctx)
		if err == nil {
			m.log.Info("Retry delivered",
				zap.String("key", msg.Key.String()),
				zap.Int("attempts", msg.Attempts))
			m.report(msg, Result{Outcome: OutcomeDelivered, Attempts: msg.Attempts})
			return
		}

		msg.History = append(msg.History, err.Error())
		kind := Classify(err)

		if !kind.Retryable() {
			m.log.Warn("Retry hit terminal failure",
				zap.String("key", msg.Key.String()),
				zap.String("kind", string(kind)),
				zap.Int("attempts", msg.Attempts),
				zap.Error(err))
			m.report(msg, Result{Outcome: OutcomeFailed, Attempts: msg.Attempts, Kind: kind, Err: err})
			return
		}

		if msg.Attempts >= msg.MaxAttempts {
			m.deadLetter(msg, kind, err)
			return
		}

		msg.NextEligible = time.Now().Add(m.backoff(msg.Attempts))
		m.log.Info("Retrying delivery",
			zap.String("key", msg.Key.String()),
			zap.Int("attempt", msg.Attempts),
			zap.Time("next", msg.NextEligible),
			zap.Error(err))
	}
}

// backoff returns the delay before the given retry attempt: base delay
// doubling per attempt, capped.
func (m *Manager) backoff(attempt int) time.Duration {
	delay := m.cfg.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= m.cfg.MaxDelay {
			return m.cfg.MaxDelay
		}
	}
	if delay > m.cfg.MaxDelay {
		return m.cfg.MaxDelay
	}
	return delay
}

// sleepUntil suspends until the eligible time or shutdown. It never
// polls.
func (m *Manager) sleepUntil(t time.Time) bool {
	d := time.Until(t)
	if d <= 0 {
		return m.ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-m.ctx.Done():
		return false
	}
}

// deadLetter records an exhausted message. kind is the classified kind
// of the failure that put it here.
func (m *Manager) deadLetter(msg *QueuedMessage, kind FailureKind, err error) {
	entry := DeadLetter{
		Key:         msg.Key,
		Description: msg.Description,
		Attempts:    msg.Attempts,
		History:     msg.History,
		At:          time.Now(),
	}

	m.deadMu.Lock()
	m.dead = append(m.dead, entry)
	if len(m.dead) > m.cfg.DeadLetterLimit {
		m.dead = m.dead[len(m.dead)-m.cfg.DeadLetterLimit:]
	}
	m.deadMu.Unlock()

	m.log.Error("Delivery dead-lettered",
		zap.String("key", msg.Key.String()),
		zap.String("description", msg.Description),
		zap.Int("attempts", msg.Attempts),
		zap.Strings("history", msg.History),
		zap.Error(err))

	m.report(msg, Result{Outcome: OutcomeFailed, Attempts: msg.Attempts, Kind: kind, Err: err})
}

// DeadLetters returns a copy of the dead-letter log, oldest first.
func (m *Manager) DeadLetters() []DeadLetter {
	m.deadMu.Lock()
	defer m.deadMu.Unlock()

	out := make([]DeadLetter, len(m.dead))
	copy(out, m.dead)
	return out
}

func (m *Manager) report(msg *QueuedMessage, res Result) {
	m.notifyMu.RLock()
	notify := m.notify
	m.notifyMu.RUnlock()

	if notify != nil {
		notify(msg, res)
	}
}
