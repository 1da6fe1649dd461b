package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/booking-assistant/internal/booking"
	"github.com/wolfman30/booking-assistant/internal/dialogue"
	"github.com/wolfman30/booking-assistant/internal/healthchat"
	"github.com/wolfman30/booking-assistant/internal/orchestrator"
	"github.com/wolfman30/booking-assistant/internal/speech"
	"github.com/wolfman30/booking-assistant/internal/transcripts"
)

type fakeBooking struct {
	mu       sync.Mutex
	sessions map[string]bool
	texts    []string
	audio    [][]byte
	written  [][]byte
	started  int
	canceled int
	events   chan orchestrator.Event
	turnErr  error
}

func newFakeBooking() *fakeBooking {
	return &fakeBooking{sessions: map[string]bool{"s1": true}, events: make(chan orchestrator.Event, 16)}
}

func (f *fakeBooking) known(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.sessions[id] {
		return orchestrator.ErrSessionNotFound
	}
	return nil
}

func (f *fakeBooking) CreateSession(_ context.Context, opts orchestrator.SessionOptions) (orchestrator.Snapshot, error) {
	lang := opts.Language
	if lang == "" {
		lang = "en-US"
	}
	f.mu.Lock()
	f.sessions["new"] = true
	f.mu.Unlock()
	return orchestrator.Snapshot{ID: "new", State: orchestrator.StateIdle, Language: lang}, nil
}

func (f *fakeBooking) Snapshot(id string) (orchestrator.Snapshot, error) {
	if err := f.known(id); err != nil {
		return orchestrator.Snapshot{}, err
	}
	return orchestrator.Snapshot{ID: id, State: orchestrator.StateIdle}, nil
}

func (f *fakeBooking) SubmitText(_ context.Context, id, text string) (orchestrator.Result, error) {
	if err := f.known(id); err != nil {
		return orchestrator.Result{}, err
	}
	if f.turnErr != nil {
		return orchestrator.Result{}, f.turnErr
	}
	if strings.TrimSpace(text) == "" {
		return orchestrator.Result{}, orchestrator.ErrEmptyUtterance
	}
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	reply := dialogue.Reply{DisplayText: "echo: " + text, SpeechText: "echo " + text}
	f.events <- orchestrator.Event{Type: orchestrator.EventReply, SessionID: id, Text: reply.DisplayText, Speech: reply.SpeechText}
	return orchestrator.Result{
		Reply: reply,
		Audio: &speech.Audio{Data: []byte("mp3"), Format: "mp3"},
		State: orchestrator.StateIdle,
	}, nil
}

func (f *fakeBooking) SubmitAudio(_ context.Context, id string, audio []byte) (orchestrator.Result, error) {
	if err := f.known(id); err != nil {
		return orchestrator.Result{}, err
	}
	f.mu.Lock()
	f.audio = append(f.audio, audio)
	f.mu.Unlock()
	return orchestrator.Result{Reply: dialogue.Reply{DisplayText: "heard you"}, State: orchestrator.StateIdle}, nil
}

func (f *fakeBooking) StartCapture(_ context.Context, id string) error {
	if err := f.known(id); err != nil {
		return err
	}
	f.mu.Lock()
	f.started++
	f.mu.Unlock()
	f.events <- orchestrator.Event{Type: orchestrator.EventState, SessionID: id, State: orchestrator.StateCapturing}
	return nil
}

func (f *fakeBooking) WriteAudio(id string, chunk []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started == 0 {
		return speech.ErrCaptureNotActive
	}
	f.written = append(f.written, chunk)
	return nil
}

func (f *fakeBooking) StopCapture(ctx context.Context, id string) (orchestrator.Result, error) {
	f.mu.Lock()
	var text string
	for _, c := range f.written {
		text += string(c)
	}
	f.mu.Unlock()
	return f.SubmitText(ctx, id, text)
}

func (f *fakeBooking) CancelCapture(id string) error {
	f.mu.Lock()
	f.canceled++
	f.mu.Unlock()
	return f.known(id)
}

func (f *fakeBooking) Subscribe(id string) (<-chan orchestrator.Event, func(), error) {
	if err := f.known(id); err != nil {
		return nil, nil, err
	}
	return f.events, func() {}, nil
}

func (f *fakeBooking) CloseSession(_ context.Context, id string) error {
	if err := f.known(id); err != nil {
		return err
	}
	f.mu.Lock()
	delete(f.sessions, id)
	f.mu.Unlock()
	return nil
}

type fakeChat struct {
	sessions map[string]bool
	chunks   []string
	// discarded is streamed and then reset before chunks.
	discarded []string
}

func (f *fakeChat) CreateSession() healthchat.Snapshot {
	f.sessions["c1"] = true
	return healthchat.Snapshot{ID: "c1", Mode: "chat"}
}

func (f *fakeChat) Snapshot(id string) (healthchat.Snapshot, error) {
	if !f.sessions[id] {
		return healthchat.Snapshot{}, healthchat.ErrSessionNotFound
	}
	return healthchat.Snapshot{ID: id, Mode: "chat"}, nil
}

func (f *fakeChat) Send(_ context.Context, id, message string, onChunk func(string)) (booking.Turn, error) {
	if !f.sessions[id] {
		return booking.Turn{}, healthchat.ErrSessionNotFound
	}
	if strings.TrimSpace(message) == "" {
		return booking.Turn{}, healthchat.ErrEmptyMessage
	}
	var acc string
	for _, c := range f.discarded {
		acc += c
		if onChunk != nil {
			onChunk(acc)
		}
	}
	if acc != "" {
		acc = ""
		if onChunk != nil {
			onChunk("")
		}
	}
	for _, c := range f.chunks {
		acc += c
		if onChunk != nil {
			onChunk(acc)
		}
	}
	return booking.Turn{Role: booking.RoleAssistant, Text: acc}, nil
}

func (f *fakeChat) Close(id string) error {
	if !f.sessions[id] {
		return healthchat.ErrSessionNotFound
	}
	delete(f.sessions, id)
	return nil
}

type fakeAppointments struct{ appts []booking.Appointment }

func (f *fakeAppointments) ListBySession(_ context.Context, sessionID string) ([]booking.Appointment, error) {
	var out []booking.Appointment
	for _, a := range f.appts {
		if a.SessionID == sessionID {
			out = append(out, a)
		}
	}
	return out, nil
}

type testServer struct {
	booking *fakeBooking
	chat    *fakeChat
	store   *transcripts.MemoryStore
	router  chi.Router
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		booking: newFakeBooking(),
		chat:    &fakeChat{sessions: map[string]bool{"c1": true}, chunks: []string{"Rest ", "and ", "hydrate."}},
		store:   transcripts.NewMemoryStore(),
	}
	sessions := NewSessionsHandler(SessionsHandlerConfig{
		Booking:     ts.booking,
		Chat:        ts.chat,
		Transcripts: ts.store,
		Appointments: &fakeAppointments{appts: []booking.Appointment{
			{ID: "a1", SessionID: "s1", DoctorName: "Dr. Smith", TimeSlot: "10:00 AM"},
		}},
	})
	chat := NewChatStream(ts.chat, nil)

	r := chi.NewRouter()
	r.Post("/sessions", sessions.Create)
	r.Get("/sessions/{id}", sessions.Get)
	r.Delete("/sessions/{id}", sessions.Close)
	r.Post("/sessions/{id}/turns", sessions.SubmitTurn)
	r.Post("/sessions/{id}/audio", sessions.SubmitAudio)
	r.Get("/sessions/{id}/transcript", sessions.Transcript)
	r.Get("/sessions/{id}/appointments", sessions.Appointments)
	r.Handle("/sessions/{id}/ws", NewVoiceSocket(ts.booking, nil))
	r.Post("/chat/{id}/stream", chat.ServeHTTP)
	r.Post("/chat/{id}/messages", chat.Message)
	ts.router = r
	return ts
}

func (ts *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func TestCreateSessionModes(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/sessions", `{"language":"ml-IN"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "booking", got["mode"])
	assert.Equal(t, "new", got["sessionId"])
	assert.Equal(t, "ml-IN", got["language"])
	assert.Equal(t, "idle", got["state"])

	rec = ts.do(http.MethodPost, "/sessions", `{"mode":"chat"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"mode":"chat"`)

	rec = ts.do(http.MethodPost, "/sessions", `{"mode":"fax"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/sessions", ``)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestGetSessionFallsBackToChat(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/sessions/s1", "").Code)
	rec := ts.do(http.MethodGet, "/sessions/c1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"mode":"chat"`)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/sessions/missing", "").Code)
}

func TestSubmitTurn(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/sessions/s1/turns", `{"text":"I have a cough"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var got turnResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "echo: I have a cough", got.DisplayText)
	assert.Equal(t, []byte("mp3"), got.Audio)
	assert.Equal(t, "mp3", got.AudioFormat)
	assert.False(t, got.Failed)

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPost, "/sessions/s1/turns", `{"text":"  "}`).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPost, "/sessions/s1/turns", `{`).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodPost, "/sessions/nope/turns", `{"text":"hi"}`).Code)

	ts.booking.turnErr = orchestrator.ErrTurnInProgress
	assert.Equal(t, http.StatusConflict, ts.do(http.MethodPost, "/sessions/s1/turns", `{"text":"hi"}`).Code)
}

func TestSubmitAudioUpload(t *testing.T) {
	ts := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("audio", "clip.wav")
	require.NoError(t, err)
	_, _ = part.Write([]byte("RIFF...."))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/sessions/s1/audio", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "heard you")
	require.Len(t, ts.booking.audio, 1)
	assert.Equal(t, []byte("RIFF...."), ts.booking.audio[0])

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPost, "/sessions/s1/audio", `{}`).Code)
}

func TestCloseSession(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusNoContent, ts.do(http.MethodDelete, "/sessions/s1", "").Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodDelete, "/sessions/s1", "").Code)
	assert.Equal(t, http.StatusNoContent, ts.do(http.MethodDelete, "/sessions/c1", "").Code)
}

func TestTranscriptAndAppointments(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.store.Upsert(context.Background(), "s1", transcripts.TypeVoice, []string{"You: hi", "Puck: hello"}))

	rec := ts.do(http.MethodGet, "/sessions/s1/transcript", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got transcripts.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, []string{"You: hi", "Puck: hello"}, got.Messages)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/sessions/other/transcript", "").Code)

	rec = ts.do(http.MethodGet, "/sessions/s1/appointments", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Dr. Smith")

	rec = ts.do(http.MethodGet, "/sessions/other/appointments", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"appointments":[]}`, rec.Body.String())
}

func TestChatStreamEmitsChunks(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/chat/c1/stream", `{"message":"I feel tired"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Equal(t, 3, strings.Count(body, "event: chunk\n"))
	assert.Contains(t, body, `data: {"text":"Rest and "}`)
	assert.Contains(t, body, "event: done\n")
	assert.Contains(t, body, `"text":"Rest and hydrate."`)

	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodPost, "/chat/zz/stream", `{"message":"hi"}`).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPost, "/chat/c1/stream", `{"message":""}`).Code)

	rec = ts.do(http.MethodPost, "/chat/c1/messages", `{"message":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Rest and hydrate.")
}

func TestChatStreamEmitsResetBeforeRegeneratedReply(t *testing.T) {
	ts := newTestServer(t)
	ts.chat.discarded = []string{"Rest "}

	rec := ts.do(http.MethodPost, "/chat/c1/stream", `{"message":"I feel tired"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	reset := strings.Index(body, "event: reset\ndata: {}\n\n")
	require.GreaterOrEqual(t, reset, 0)
	assert.Less(t, strings.Index(body, `data: {"text":"Rest "}`), reset)
	assert.Equal(t, 4, strings.Count(body, "event: chunk\n"))
	assert.NotContains(t, body, `"text":""`)
	assert.Contains(t, body, `"text":"Rest and hydrate."`)
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		orchestrator.ErrSessionNotFound:    http.StatusNotFound,
		transcripts.ErrNotFound:            http.StatusNotFound,
		healthchat.ErrReplyInProgress:      http.StatusConflict,
		speech.ErrCaptureActive:            http.StatusConflict,
		orchestrator.ErrEmptyUtterance:     http.StatusBadRequest,
		speech.ErrCapture:                  http.StatusUnprocessableEntity,
		orchestrator.ErrCaptureUnavailable: http.StatusNotImplemented,
		orchestrator.ErrClosed:             http.StatusServiceUnavailable,
		context.DeadlineExceeded:           http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(err), err.Error())
	}
}

func TestVoiceSocket(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/s1/ws"
	conn, err := websocket.Dial(url, "", srv.URL)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	recv := func() orchestrator.Event {
		t.Helper()
		var ev orchestrator.Event
		require.NoError(t, websocket.JSON.Receive(conn, &ev))
		return ev
	}

	require.NoError(t, websocket.JSON.Send(conn, VoiceMessage{Type: wsPing}))
	assert.Equal(t, wsPong, recv().Type)

	require.NoError(t, websocket.JSON.Send(conn, VoiceMessage{Type: wsStart}))
	ev := recv()
	assert.Equal(t, orchestrator.EventState, ev.Type)
	assert.Equal(t, orchestrator.StateCapturing, ev.State)

	require.NoError(t, websocket.JSON.Send(conn, VoiceMessage{Type: wsAudio, Audio: []byte("book ")}))
	require.NoError(t, websocket.JSON.Send(conn, VoiceMessage{Type: wsAudio, Audio: []byte("Dr. Smith")}))
	require.NoError(t, websocket.JSON.Send(conn, VoiceMessage{Type: wsStop}))
	ev = recv()
	assert.Equal(t, orchestrator.EventReply, ev.Type)
	assert.Equal(t, "echo: book Dr. Smith", ev.Text)

	require.NoError(t, websocket.JSON.Send(conn, VoiceMessage{Type: "dance"}))
	ev = recv()
	assert.Equal(t, orchestrator.EventError, ev.Type)
	assert.Contains(t, ev.Error, "dance")
}

func TestVoiceSocketUnknownSession(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/sessions/ghost/ws", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
