package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/coral-ai/proctor/internal/observe"
	"github.com/coral-ai/proctor/internal/prompts"
	"github.com/coral-ai/proctor/pkg/exam"
	"github.com/coral-ai/proctor/pkg/room"
	"github.com/coral-ai/proctor/pkg/speech"
)

// messageTypeQuestions is the data-channel message type that carries an exam
// id.
const messageTypeQuestions = "QUESTIONS"

const (
	defaultWelcomeDelay     = 2 * time.Second
	defaultAdvanceDelay     = 1500 * time.Millisecond
	defaultWatchdogInterval = 5 * time.Second
	defaultWatchdogChecks   = 12
	defaultReminderCheck    = 3

	eventQueueSize = 32
)

// dataMessage is the decoded shape of an inbound data-channel payload.
type dataMessage struct {
	Type string `json:"type"`
	Data struct {
		ExamID string `json:"examId"`
	} `json:"data"`
}

type eventKind int

const (
	eventData eventKind = iota
	eventCommit
	eventWatchdogTick
)

func (k eventKind) String() string {
	switch k {
	case eventData:
		return "data"
	case eventCommit:
		return "commit"
	case eventWatchdogTick:
		return "watchdog_tick"
	default:
		return "unknown"
	}
}

type event struct {
	kind   eventKind
	packet room.DataPacket
	check  int
}

// Config assembles a Controller's collaborators and pacing.
type Config struct {
	// Agent speaks to the room and is required.
	Agent speech.Agent

	// Store resolves exam ids and is required.
	Store exam.Store

	// Acknowledgements enables a short LLM remark after each committed
	// answer, when the agent supports it.
	Acknowledgements bool

	// WelcomeDelay is the pause between the welcome message and the first
	// question. Default 2 s.
	WelcomeDelay time.Duration

	// AdvanceDelay is the pause between a committed answer and the next
	// question. Default 1.5 s.
	AdvanceDelay time.Duration

	// WatchdogInterval and WatchdogChecks bound how long the session waits
	// for exam data. Defaults: 5 s, 12 checks.
	WatchdogInterval time.Duration
	WatchdogChecks   int

	// ReminderCheck is the check number at which the waiting reminder is
	// spoken. Default 3.
	ReminderCheck int

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	Logger *slog.Logger
}

// Controller runs one exam session. All state mutation happens on the single
// goroutine inside [Controller.Run]; inbound triggers are posted as events
// through the non-blocking Handle methods.
type Controller struct {
	cfg Config
	log *slog.Logger
	met *observe.Metrics

	state        State
	reminderSent bool

	events chan event

	// completed is closed once the closing message has been spoken, so the
	// owner can tear the session down.
	completed chan struct{}

	// speaking is true while the agent plays a line; utterance commits that
	// arrive in that window are the student talking over the proctor and are
	// dropped rather than queued.
	speaking atomic.Bool

	// dataSeen mirrors state.dataReceived for the watchdog goroutine.
	dataSeen atomic.Bool
}

// New validates cfg and returns a Controller ready to Run.
func New(cfg Config) (*Controller, error) {
	if cfg.Agent == nil {
		return nil, errors.New("session: agent is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("session: exam store is required")
	}
	if cfg.WelcomeDelay <= 0 {
		cfg.WelcomeDelay = defaultWelcomeDelay
	}
	if cfg.AdvanceDelay <= 0 {
		cfg.AdvanceDelay = defaultAdvanceDelay
	}
	if cfg.WatchdogInterval <= 0 {
		cfg.WatchdogInterval = defaultWatchdogInterval
	}
	if cfg.WatchdogChecks <= 0 {
		cfg.WatchdogChecks = defaultWatchdogChecks
	}
	if cfg.ReminderCheck <= 0 {
		cfg.ReminderCheck = defaultReminderCheck
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Controller{
		cfg:       cfg,
		log:       cfg.Logger.With("component", "session"),
		met:       cfg.Metrics,
		events:    make(chan event, eventQueueSize),
		completed: make(chan struct{}),
	}, nil
}

// HandleData posts an inbound data packet. Never blocks; the packet is
// dropped with a log line when the queue is full.
func (c *Controller) HandleData(pkt room.DataPacket) {
	c.post(event{kind: eventData, packet: pkt})
}

// HandleUtteranceCommitted posts a committed student answer. Commits that
// arrive while the proctor is speaking are dropped.
func (c *Controller) HandleUtteranceCommitted(u speech.Utterance) {
	if c.speaking.Load() {
		c.log.Debug("utterance commit dropped, proctor speaking", "text_len", len(u.Text))
		return
	}
	c.post(event{kind: eventCommit})
}

func (c *Controller) post(ev event) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn("event dropped, queue full", "kind", ev.kind.String())
	}
}

// Run consumes events until ctx is cancelled. It must be called exactly once.
func (c *Controller) Run(ctx context.Context) {
	go c.watchdog(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.events:
			switch ev.kind {
			case eventData:
				c.handleData(ctx, ev.packet)
			case eventCommit:
				c.handleCommit(ctx)
			case eventWatchdogTick:
				c.handleTick(ctx, ev.check)
			}
		}
	}
}

// Done returns a channel that is closed after the closing message has been
// spoken. The owner should then cancel Run's context and disconnect the room.
func (c *Controller) Done() <-chan struct{} {
	return c.completed
}

// Snapshot returns a copy of the session state. Only safe to call after Run
// has returned.
func (c *Controller) Snapshot() Snapshot {
	return c.state.snapshot()
}

func (c *Controller) handleData(ctx context.Context, pkt room.DataPacket) {
	c.log.Info("data received", "sender", pkt.Sender, "bytes", len(pkt.Payload))

	var msg dataMessage
	if err := json.Unmarshal(pkt.Payload, &msg); err != nil {
		c.log.Error("malformed data payload", "error", err)
		c.met.RecordDataMessage(ctx, "malformed")
		return
	}

	c.state.dataReceived = true
	c.dataSeen.Store(true)

	if msg.Type != messageTypeQuestions {
		c.log.Info("ignoring data message", "type", msg.Type)
		c.met.RecordDataMessage(ctx, "ignored")
		return
	}
	c.met.RecordDataMessage(ctx, "questions")

	if msg.Data.ExamID == "" {
		c.log.Error("no examId in questions message")
		return
	}

	c.log.Info("looking up exam", "exam_id", msg.Data.ExamID)
	e, err := c.cfg.Store.GetExamByID(ctx, msg.Data.ExamID)
	if err != nil {
		status := loadStatus(err)
		c.met.RecordExamLoad(ctx, status)
		c.log.Error("exam load failed", "exam_id", msg.Data.ExamID, "kind", status, "error", err)
		c.say(ctx, prompts.LoadFailure, false)
		return
	}
	c.met.RecordExamLoad(ctx, "ok")

	c.state.exam = e
	c.log.Info("exam loaded", "exam_id", e.ID, "name", e.Name, "questions", len(e.Questions))

	c.say(ctx, prompts.Welcome(e), false)
	c.sleep(ctx, c.cfg.WelcomeDelay)
	c.askNextQuestion(ctx)
}

func (c *Controller) handleCommit(ctx context.Context) {
	c.log.Info("student answer committed")
	c.met.UtterancesCommitted.Add(ctx, 1)

	if c.cfg.Acknowledgements {
		if ack, ok := c.cfg.Agent.(speech.Acknowledger); ok {
			remark, err := ack.Remark(ctx)
			switch {
			case err != nil:
				c.log.Warn("remark failed", "error", err)
			case remark != "":
				c.say(ctx, remark, false)
			}
		}
	}

	c.sleep(ctx, c.cfg.AdvanceDelay)
	if !c.state.examCompleted {
		c.askNextQuestion(ctx)
	}
}

func (c *Controller) handleTick(ctx context.Context, check int) {
	c.log.Info("data check",
		"check", check,
		"max", c.cfg.WatchdogChecks,
		"data_received", c.state.dataReceived,
	)
	if check == c.cfg.ReminderCheck && !c.state.dataReceived && !c.reminderSent {
		c.reminderSent = true
		c.say(ctx, prompts.Reminder, false)
	}
}

// askNextQuestion advances the exam by one question, or closes the session
// when none remain. Guards run in a fixed order so a half-initialised session
// degrades to silence or a single spoken error, never a crash.
func (c *Controller) askNextQuestion(ctx context.Context) {
	if !c.state.dataReceived {
		c.log.Warn("next question requested before any exam data")
		return
	}
	if c.state.exam == nil {
		c.log.Error("exam data was invalid")
		c.say(ctx, prompts.InvalidData, false)
		return
	}
	if c.state.examCompleted {
		c.log.Info("exam already completed")
		return
	}

	if c.state.currentQuestionIndex < len(c.state.exam.Questions) {
		question := c.state.exam.Questions[c.state.currentQuestionIndex].Text
		c.log.Info("asking question",
			"number", c.state.currentQuestionIndex+1,
			"total", len(c.state.exam.Questions),
		)

		c.state.questionsAsked++
		c.met.QuestionsAsked.Add(ctx, 1)
		c.say(ctx, prompts.Question(c.state.currentQuestionIndex, question), true)
		c.state.currentQuestionIndex++
		return
	}

	c.log.Info("all questions completed, ending exam")
	c.state.examCompleted = true
	c.say(ctx, prompts.Closing, false)
	close(c.completed)
}

// watchdog posts periodic checks until exam data arrives or the check budget
// is spent. Expiry is not a state transition; the session just stays silent.
func (c *Controller) watchdog(ctx context.Context) {
	for check := 1; check <= c.cfg.WatchdogChecks; check++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.WatchdogInterval):
		}
		if c.dataSeen.Load() {
			return
		}
		c.post(event{kind: eventWatchdogTick, check: check})
	}
	c.log.Warn("no exam data received before watchdog expiry")
}

func (c *Controller) say(ctx context.Context, text string, allowInterruptions bool) {
	c.speaking.Store(true)
	start := time.Now()
	err := c.cfg.Agent.Say(ctx, text, allowInterruptions)
	c.speaking.Store(false)

	c.met.SpeakDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		c.log.Error("say failed", "error", err)
	}
}

func (c *Controller) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// loadStatus maps a store error to its metric/log label.
func loadStatus(err error) string {
	switch {
	case errors.Is(err, exam.ErrInvalidID):
		return "invalid_id"
	case errors.Is(err, exam.ErrNotFound):
		return "not_found"
	case errors.Is(err, exam.ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
