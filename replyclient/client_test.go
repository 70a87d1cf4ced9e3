package replyclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/amglabs/companion/domain"
)

func testClient(srv *httptest.Server) *Client {
	return NewClient(srv.URL, 5*time.Second)
}

func TestReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/reply" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req ReplyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Prompt != "hi" || !req.Premium || req.Mood != "cute" {
			t.Errorf("request fields not forwarded: %+v", req)
		}
		json.NewEncoder(w).Encode(ReplyResponse{Reply: "hey!", NSFW: true})
	}))
	defer srv.Close()

	resp, err := testClient(srv).Reply(context.Background(), &ReplyRequest{
		Prompt:  "hi",
		Premium: true,
		Mood:    "cute",
	})
	if err != nil {
		t.Fatalf("Reply failed: %v", err)
	}
	if resp.Reply != "hey!" || !resp.NSFW {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestReplyServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := testClient(srv).Reply(context.Background(), &ReplyRequest{Prompt: "hi"})
	if err == nil {
		t.Fatal("expected error for 503")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("expected status in error, got: %v", err)
	}
}

func TestTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcribe" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("missing file part: %v", err)
		}
		defer file.Close()
		if header.Filename != "clip.webm" {
			t.Errorf("unexpected filename: %s", header.Filename)
		}
		data, _ := io.ReadAll(file)
		if string(data) != "fake audio" {
			t.Errorf("audio not forwarded: %q", data)
		}
		json.NewEncoder(w).Encode(TranscribeResponse{Text: "hello there"})
	}))
	defer srv.Close()

	resp, err := testClient(srv).Transcribe(context.Background(), "clip.webm", strings.NewReader("fake audio"))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if resp.Text != "hello there" {
		t.Fatalf("unexpected transcription: %q", resp.Text)
	}
}

func TestSynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tts" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if payload["text"] != "say this" {
			t.Errorf("text not forwarded: %q", payload["text"])
		}
		w.Write([]byte("mp3 bytes"))
	}))
	defer srv.Close()

	audio, err := testClient(srv).Synthesize(context.Background(), "say this")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if string(audio) != "mp3 bytes" {
		t.Fatalf("unexpected audio: %q", audio)
	}
}

func TestCheckoutEndpoints(t *testing.T) {
	var gotPath string
	var gotPayload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotPayload = map[string]string{}
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		json.NewEncoder(w).Encode(CheckoutResponse{URL: "https://pay.example/" + r.URL.Path})
	}))
	defer srv.Close()

	client := testClient(srv)
	ctx := context.Background()

	resp, err := client.Subscribe(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if gotPath != "/subscribe" || gotPayload["email"] != "a@example.com" {
		t.Errorf("unexpected subscribe request: %s %v", gotPath, gotPayload)
	}
	if resp.URL == "" {
		t.Error("expected redirect URL")
	}

	if _, err := client.Portal(ctx, "a@example.com"); err != nil {
		t.Fatalf("Portal failed: %v", err)
	}
	if gotPath != "/portal" {
		t.Errorf("unexpected portal path: %s", gotPath)
	}

	if _, err := client.MemoryUpgrade(ctx, "a@example.com", domain.MemoryTierDeep); err != nil {
		t.Fatalf("MemoryUpgrade failed: %v", err)
	}
	if gotPath != "/stripe/memory-upgrade" || gotPayload["tier"] != "deep" {
		t.Errorf("unexpected upgrade request: %s %v", gotPath, gotPayload)
	}
}

func TestAssetEndpoints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-user-id") != "u1" {
			t.Errorf("missing identity header")
		}
		switch r.URL.Path {
		case "/model/model-url":
			json.NewEncoder(w).Encode(AssetResponse{URL: "https://cdn.example/model.vrm", PreviewOnly: true})
		case "/environment/user-env":
			if r.Header.Get("x-env-name") != "cityscape" {
				t.Errorf("missing env header")
			}
			json.NewEncoder(w).Encode(AssetResponse{URL: "https://cdn.example/city.hdr"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := testClient(srv)
	ctx := context.Background()

	model, err := client.ModelURL(ctx, "u1")
	if err != nil {
		t.Fatalf("ModelURL failed: %v", err)
	}
	if model.URL != "https://cdn.example/model.vrm" || !model.PreviewOnly {
		t.Fatalf("unexpected model asset: %+v", model)
	}

	env, err := client.UserEnvironment(ctx, "u1", "cityscape")
	if err != nil {
		t.Fatalf("UserEnvironment failed: %v", err)
	}
	if env.URL != "https://cdn.example/city.hdr" || env.PreviewOnly {
		t.Fatalf("unexpected environment asset: %+v", env)
	}
}
