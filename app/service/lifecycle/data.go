package lifecycle

import (
	"log/slog"
	"sync"
	"time"

	"souqlive/app/model"
	"souqlive/app/service/fusion"
)

type ThreadState string

const (
	StateActive  ThreadState = "active"
	StateIdle    ThreadState = "idle"
	StateEvicted ThreadState = "evicted"
)

const mailboxSize = 16

// thread is the in-memory state of one conversation, owned by a single
// runner goroutine. All access is funneled through the mailbox, so work
// within a thread executes strictly in arrival order while unrelated
// threads proceed in parallel.
type thread struct {
	id        string
	mailbox   chan mail
	done      chan struct{}
	closeOnce sync.Once

	// owned by the runner goroutine
	closing       bool
	turnCount     int
	activeDomain  string
	currentIntent string
	summaries     []model.RollingSummary
	facts         model.FactTable
	lastActivity  time.Time
}

type mail struct {
	job func()
	ran chan bool
}

func (th *thread) run() {
	defer close(th.done)

	for m := range th.mailbox {
		if th.closing {
			m.ran <- false
			continue
		}
		th.execute(m)
	}
}

func (th *thread) execute(m mail) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Thread job panicked", "thread_id", th.id, "panic", r, "telegram", true)
		}
		m.ran <- true
	}()

	m.job()
}

// post runs job on the runner goroutine and waits for it to finish. It
// reports false when the thread has been evicted, in which case the
// caller must re-acquire and retry.
func (th *thread) post(job func()) (ok bool) {
	defer func() {
		// send on a closed mailbox
		if recover() != nil {
			ok = false
		}
	}()

	m := mail{job: job, ran: make(chan bool, 1)}
	select {
	case th.mailbox <- m:
		return <-m.ran
	case <-th.done:
		return false
	}
}

func (th *thread) close() {
	th.closeOnce.Do(func() {
		close(th.mailbox)
	})
}

// TurnResult is what the lifecycle hands to the downstream agent after
// ingesting a turn.
type TurnResult struct {
	Context       fusion.Result
	ActiveDomain  string
	CurrentIntent string
	TurnCount     int
	Summarized    bool
}

// ThreadInfo is a read-only view of a thread for the API surface.
type ThreadInfo struct {
	ThreadID      string      `json:"thread_id"`
	State         ThreadState `json:"state"`
	TurnCount     int         `json:"turn_count"`
	ActiveDomain  string      `json:"active_domain"`
	CurrentIntent string      `json:"current_intent"`
	LastActivity  time.Time   `json:"last_activity"`
}
