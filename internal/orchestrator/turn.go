package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/booking-assistant/internal/booking"
	"github.com/wolfman30/booking-assistant/internal/dialogue"
	"github.com/wolfman30/booking-assistant/internal/speech"
	"github.com/wolfman30/booking-assistant/internal/tools"
)

// Result is the outcome of one user turn.
type Result struct {
	Reply       dialogue.Reply
	Audio       *speech.Audio
	Appointment *booking.Appointment
	State       State
	// Failed is set when the reply is the fixed apology.
	Failed bool
}

// SubmitText runs a turn for typed input. It preempts capture and playback
// but not a turn already in flight.
func (o *Orchestrator) SubmitText(ctx context.Context, id, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, ErrEmptyUtterance
	}
	s, err := o.lookup(id)
	if err != nil {
		return Result{}, err
	}
	seq, err := o.beginTurn(s)
	if err != nil {
		return Result{}, err
	}
	return o.runTurn(ctx, s, seq, text), nil
}

// SubmitAudio recognizes a complete recording and runs a turn on the text.
func (o *Orchestrator) SubmitAudio(ctx context.Context, id string, audio []byte) (Result, error) {
	if o.transcriber == nil {
		return Result{}, ErrCaptureUnavailable
	}
	s, err := o.lookup(id)
	if err != nil {
		return Result{}, err
	}
	seq, err := o.beginTurn(s)
	if err != nil {
		return Result{}, err
	}

	text, err := o.transcriber.Transcribe(ctx, s.language, audio)
	if err != nil {
		err = fmt.Errorf("%w: %w", speech.ErrCapture, err)
		o.captureFailed(s, seq, err)
		return Result{State: StateIdle}, err
	}
	return o.finishCapture(ctx, s, seq, text), nil
}

// beginTurn moves the session to Thinking.
func (o *Orchestrator) beginTurn(s *session) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrSessionNotFound
	}
	if s.state.busy() {
		return 0, ErrTurnInProgress
	}
	switch s.state {
	case StateCapturing:
		s.capture.Cancel()
	case StateSpeaking:
		o.stopSpeakingLocked(s)
	}
	s.seq++
	s.setStateLocked(StateThinking)
	return s.seq, nil
}

// StartCapture begins listening. Playback of a previous reply is cancelled.
func (o *Orchestrator) StartCapture(ctx context.Context, id string) error {
	s, err := o.lookup(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionNotFound
	}
	switch {
	case s.state.busy():
		return ErrTurnInProgress
	case s.state == StateCapturing:
		return speech.ErrCaptureActive
	case s.state == StateSpeaking:
		o.stopSpeakingLocked(s)
	}

	if s.capture == nil {
		capture, err := o.newCapture(s)
		if err != nil {
			return err
		}
		s.capture = capture
		o.goTracked(func() { o.forwardCapture(s, capture) })
	}
	if err := s.capture.Start(ctx); err != nil {
		return err
	}
	s.seq++
	s.setStateLocked(StateCapturing)
	return nil
}

func (o *Orchestrator) newCapture(s *session) (*speech.Capture, error) {
	cfg := speech.CaptureConfig{Language: s.language, Logger: s.logger}
	switch {
	case o.streamer != nil:
		cfg.Mode = speech.ModeContinuous
		cfg.Streamer = o.streamer
	case o.transcriber != nil:
		cfg.Mode = speech.ModeSingleShot
		cfg.Transcriber = o.transcriber
	default:
		return nil, ErrCaptureUnavailable
	}
	return speech.NewCapture(cfg), nil
}

// WriteAudio feeds a chunk to the running capture.
func (o *Orchestrator) WriteAudio(id string, chunk []byte) error {
	s, err := o.lookup(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	capture := s.capture
	capturing := s.state == StateCapturing
	s.mu.Unlock()
	if capture == nil || !capturing {
		return speech.ErrCaptureNotActive
	}
	return capture.Write(chunk)
}

// StopCapture finalizes the utterance and runs a turn on it. An empty
// utterance returns the session to Idle without calling the model.
func (o *Orchestrator) StopCapture(ctx context.Context, id string) (Result, error) {
	s, err := o.lookup(id)
	if err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	if s.state != StateCapturing {
		s.mu.Unlock()
		return Result{}, speech.ErrCaptureNotActive
	}
	s.seq++
	seq := s.seq
	capture := s.capture
	s.setStateLocked(StateThinking)
	s.mu.Unlock()

	text, err := capture.Stop(ctx)
	if err != nil {
		o.captureFailed(s, seq, err)
		return Result{State: StateIdle}, err
	}
	return o.finishCapture(ctx, s, seq, text), nil
}

// CancelCapture discards the running capture.
func (o *Orchestrator) CancelCapture(id string) error {
	s, err := o.lookup(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCapturing {
		return speech.ErrCaptureNotActive
	}
	s.capture.Cancel()
	s.seq++
	s.setStateLocked(StateIdle)
	return nil
}

func (o *Orchestrator) finishCapture(ctx context.Context, s *session, seq uint64, text string) Result {
	text = strings.TrimSpace(text)
	if text == "" {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.setStateLocked(StateIdle)
		return Result{State: StateIdle}
	}
	s.publish(Event{Type: EventFinal, Text: text})
	return o.runTurn(ctx, s, seq, text)
}

// forwardCapture relays recognizer events to subscribers. A recognition
// failure while listening ends the capture.
func (o *Orchestrator) forwardCapture(s *session, capture *speech.Capture) {
	for ev := range capture.Events() {
		switch ev.Kind {
		case speech.EventPartial, speech.EventSegment:
			s.publish(Event{Type: EventPartial, Text: ev.Text})
		case speech.EventError:
			s.mu.Lock()
			listening := s.state == StateCapturing
			seq := s.seq
			if listening {
				capture.Cancel()
			}
			s.mu.Unlock()
			if listening {
				o.captureFailed(s, seq, ev.Err)
			}
		}
	}
}

func (o *Orchestrator) captureFailed(s *session, seq uint64, err error) {
	o.metrics.ObserveTurn("capture_error", 0)
	s.logger.Warn("speech capture failed", "error", err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq != seq || s.closed {
		return
	}
	s.setStateLocked(StateError)
	s.publishLocked(Event{Type: EventError, Error: err.Error()})
	s.setStateLocked(StateIdle)
}

// runTurn drives Thinking, ToolRound and Speaking for one utterance. Model
// calls are not cancelled by the caller; they are bounded by the turn timeout.
func (o *Orchestrator) runTurn(ctx context.Context, s *session, seq uint64, utterance string) Result {
	start := o.now()
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.turnTimeout)
	defer cancel()

	s.appendTurn(booking.Turn{Role: booking.RoleUser, Text: utterance, CreatedAt: o.now()})

	outcome := "direct"
	reply, err := s.conv.Send(tctx, utterance)
	var appt *booking.Appointment
	if err == nil && reply.IsToolCall() {
		outcome = "tool"
		reply, appt, err = o.toolRound(tctx, s, reply.Invocation)
	}
	if err != nil {
		return o.fail(s, seq, start, err)
	}

	s.mu.Lock()
	s.turns = append(s.turns, booking.Turn{Role: booking.RoleAssistant, Text: reply.DisplayText, CreatedAt: o.now()})
	s.setStateLocked(StateSpeaking)
	s.publishLocked(Event{Type: EventReply, Text: reply.DisplayText, Speech: reply.SpeechText})
	s.mu.Unlock()

	o.persist(s)
	o.metrics.ObserveTurn(outcome, o.now().Sub(start))

	audio := o.speak(s, seq, reply)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq == seq && s.state == StateSpeaking {
		s.setStateLocked(StateIdle)
	}
	return Result{Reply: reply, Audio: audio, Appointment: appt, State: s.state}
}

func (o *Orchestrator) toolRound(ctx context.Context, s *session, inv dialogue.Invocation) (dialogue.Reply, *booking.Appointment, error) {
	s.mu.Lock()
	s.setStateLocked(StateToolRound)
	draft := s.draft
	lines := s.linesLocked(o.assistantName)
	s.mu.Unlock()

	s.logger.Info("resolving tool call", "tool", inv.Name)
	out, err := o.tools.Execute(ctx, tools.Request{
		SessionID:  s.id,
		Language:   s.language,
		Source:     booking.SourceVoice,
		Draft:      &draft,
		Transcript: lines,
		Responder:  s.conv,
	}, inv)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = draft
	if err != nil {
		return dialogue.Reply{}, nil, err
	}
	s.turns = append(s.turns, out.Audit)
	return out.Reply, out.Appointment, nil
}

// fail records the apology, passes through Error and lands in Idle.
func (o *Orchestrator) fail(s *session, seq uint64, start time.Time, err error) Result {
	kind := describe(err)
	o.metrics.ObserveTurn("error", o.now().Sub(start))
	s.logger.Error("turn failed", "error", err, "kind", kind, "model", s.conv.Model())

	reply := dialogue.Direct(ApologyText, ApologyText)
	s.mu.Lock()
	s.turns = append(s.turns, booking.Turn{Role: booking.RoleAssistant, Text: ApologyText, CreatedAt: o.now()})
	if s.seq == seq {
		s.setStateLocked(StateError)
		s.publishLocked(Event{Type: EventError, Error: kind})
		s.publishLocked(Event{Type: EventReply, Text: reply.DisplayText, Speech: reply.SpeechText})
		s.setStateLocked(StateIdle)
	}
	state := s.state
	s.mu.Unlock()

	o.persist(s)
	return Result{Reply: reply, State: state, Failed: true}
}

// speak synthesizes the reply. Failure or preemption is not an error for the
// turn; the display text has already been delivered.
func (o *Orchestrator) speak(s *session, seq uint64, reply dialogue.Reply) *speech.Audio {
	if o.synthesizer == nil || strings.TrimSpace(reply.SpeechText) == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.turnTimeout)
	defer cancel()
	s.mu.Lock()
	if s.seq != seq {
		s.mu.Unlock()
		return nil
	}
	s.speakCancel = cancel
	s.mu.Unlock()

	audio, err := o.synthesizer.Synthesize(ctx, reply.SpeechText, s.language)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq == seq {
		s.speakCancel = nil
	}
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			s.logger.Debug("speech output preempted")
		} else {
			s.logger.Warn("speech output failed", "error", err)
		}
		return nil
	}
	if s.seq != seq {
		return nil
	}
	s.publishLocked(Event{Type: EventAudio, Audio: audio.Data, AudioFormat: audio.Format})
	return &audio
}

func (o *Orchestrator) stopSpeakingLocked(s *session) {
	if s.speakCancel != nil {
		s.speakCancel()
		s.speakCancel = nil
	}
}
