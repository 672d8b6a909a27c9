package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/toddler-chat/backend/internal/model/chat"
	speechmodel "github.com/zhouzirui/toddler-chat/backend/internal/model/speech"
	"github.com/zhouzirui/toddler-chat/backend/internal/service/dialogue"
)

type fakeRecognizer struct {
	enabled bool
	text    string
	err     error

	mu     sync.Mutex
	format string
	audio  string
}

func (f *fakeRecognizer) RecognitionEnabled() bool { return f.enabled }

func (f *fakeRecognizer) TranscribeAudio(ctx context.Context, req *speechmodel.ASRRequest) (*speechmodel.ASRResponse, error) {
	data, _ := io.ReadAll(req.AudioData)
	return f.TranscribeBuffer(ctx, req.SessionID, data, req.Format, req.Language)
}

func (f *fakeRecognizer) TranscribeBuffer(_ context.Context, sessionID string, audioData []byte, format, _ string) (*speechmodel.ASRResponse, error) {
	f.mu.Lock()
	f.format = format
	f.audio = string(audioData)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &speechmodel.ASRResponse{SessionID: sessionID, Text: f.text}, nil
}

type fakeTurns struct {
	mu    sync.Mutex
	sent  []string
	voice bool
	err   error
}

func (f *fakeTurns) SendMessage(_ context.Context, id, text, contextAction string) (dialogue.TurnResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return dialogue.TurnResult{}, f.err
	}
	f.sent = append(f.sent, text)
	return dialogue.TurnResult{
		Status: dialogue.StatusCompleted,
		Reply:  &chat.Message{Role: chat.RoleModel, Text: "Yay!"},
	}, nil
}

func (f *fakeTurns) Snapshot(id string) (dialogue.Snapshot, error) {
	if id != "h1" {
		return dialogue.Snapshot{}, dialogue.ErrSessionNotFound
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return dialogue.Snapshot{Voice: f.voice}, nil
}

func (f *fakeTurns) SetVoice(_ string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voice = enabled
	return nil
}

func (f *fakeTurns) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func uploadRequest(t *testing.T, path, filename string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("audio", filename)
	if err != nil {
		t.Fatalf("CreateFormFile err: %v", err)
	}
	if _, err := part.Write([]byte("audio")); err != nil {
		t.Fatalf("write audio err: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer err: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func serve(h *Handler, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestTranscribeSendsTurn(t *testing.T) {
	recognizer := &fakeRecognizer{enabled: true, text: " want juice "}
	turns := &fakeTurns{}
	resp := serve(New(recognizer, turns, nil), uploadRequest(t, "/sessions/h1/speech/transcribe", "clip.wav"))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if recognizer.format != "wav" {
		t.Fatalf("expected wav format, got %s", recognizer.format)
	}
	sent := turns.messages()
	if len(sent) != 1 || sent[0] != "want juice" {
		t.Fatalf("expected trimmed transcript to be sent, got %v", sent)
	}

	var body transcribeResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Transcript != "want juice" || body.Turn.Reply == nil {
		t.Fatalf("unexpected response: %+v", body)
	}
}

func TestTranscribeNothingHeard(t *testing.T) {
	turns := &fakeTurns{}
	for _, recognizer := range []*fakeRecognizer{
		{enabled: true, text: "   "},
		{enabled: true, err: errors.New("timeout")},
	} {
		resp := serve(New(recognizer, turns, nil), uploadRequest(t, "/sessions/h1/speech/transcribe", "clip.webm"))
		if resp.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", resp.Code)
		}
		if !bytes.Contains(resp.Body.Bytes(), []byte(NotHeardNotice)) {
			t.Fatalf("expected notice in body, got %s", resp.Body.String())
		}
	}
	if len(turns.messages()) != 0 {
		t.Fatalf("no turn expected when nothing was heard")
	}
}

func TestTranscribeUnavailable(t *testing.T) {
	resp := serve(New(&fakeRecognizer{}, &fakeTurns{}, nil), uploadRequest(t, "/sessions/h1/speech/transcribe", "clip.wav"))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}

func TestTranscribeUnknownSession(t *testing.T) {
	resp := serve(New(&fakeRecognizer{enabled: true}, &fakeTurns{}, nil), uploadRequest(t, "/sessions/nobody/speech/transcribe", "clip.wav"))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestTranscribeMissingAudio(t *testing.T) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	_ = writer.WriteField("language", "en")
	_ = writer.Close()
	req := httptest.NewRequest(http.MethodPost, "/sessions/h1/speech/transcribe", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp := serve(New(&fakeRecognizer{enabled: true, text: "hi"}, &fakeTurns{}, nil), req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestInferAudioFormat(t *testing.T) {
	cases := map[string]string{
		"a.MP3":  "mp3",
		"a.webm": "webm",
		"a.m4a":  "m4a",
		"a":      "webm",
		"a.flac": "webm",
	}
	for name, want := range cases {
		if got := inferAudioFormat(name); got != want {
			t.Fatalf("inferAudioFormat(%q) = %q, want %q", name, got, want)
		}
	}
}
