package render_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"podium/internal/artifact"
	"podium/internal/render"
	"podium/internal/services"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *render.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return render.NewClient(server.URL, 5*time.Second)
}

func TestRenderAudioReturnsHandle(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/render/audio" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req render.AudioRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.VersionID != 42 {
			t.Errorf("version_id = %d, want 42", req.VersionID)
		}
		json.NewEncoder(w).Encode(map[string]string{"job_id": "job-1"})
	})

	handle, err := client.RenderAudio(context.Background(), render.AudioRequest{VersionID: 42, SourceKey: "k", OutputKey: "o"})
	if err != nil {
		t.Fatalf("RenderAudio failed: %v", err)
	}
	if handle != "job-1" {
		t.Fatalf("handle = %q, want job-1", handle)
	}
}

func TestRenderPartBooksReturnsJobs(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"jobs": []map[string]any{
				{"part_identity_id": 1, "job_id": "pb-1"},
				{"part_identity_id": 2, "job_id": "pb-2"},
			},
		})
	})

	jobs, err := client.RenderPartBooks(context.Background(), render.BookRequest{EnsembleID: 1, PartIdentityIDs: []int64{1, 2}, Revision: 3})
	if err != nil {
		t.Fatalf("RenderPartBooks failed: %v", err)
	}
	if len(jobs) != 2 || jobs[0].Handle != "pb-1" || jobs[1].PartIdentityID != 2 {
		t.Fatalf("unexpected jobs: %+v", jobs)
	}
}

func TestJobStateParsesObservation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/jobs/job-1" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]string{"state": "complete", "result_key": "out/a.mp3"})
	})

	obs, err := client.JobState(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("JobState failed: %v", err)
	}
	if obs.State != artifact.StateComplete || obs.ResultKey != "out/a.mp3" {
		t.Fatalf("unexpected observation: %+v", obs)
	}
}

func TestJobStateRejectsUnknownState(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"state": "exploded"})
	})

	if _, err := client.JobState(context.Background(), "job-1"); !errors.Is(err, services.ErrRender) {
		t.Fatalf("got %v, want ErrRender", err)
	}
}

func TestServerErrorsAreTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	if _, err := client.JobState(context.Background(), "job-1"); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("got %v, want ErrTransient", err)
	}
}

func TestNotFoundIsNotTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	if _, err := client.ArtifactLinks(context.Background(), "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestRequestIDPropagatesFromContext(t *testing.T) {
	var gotHeader string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Request-ID")
		json.NewEncoder(w).Encode(map[string]string{"state": "complete"})
	})

	ctx := services.WithRequestID(context.Background(), "req-abc123")
	if _, err := client.JobState(ctx, "job-1"); err != nil {
		t.Fatalf("JobState failed: %v", err)
	}
	if gotHeader != "req-abc123" {
		t.Fatalf("X-Request-ID = %q, want req-abc123", gotHeader)
	}

	// Without a context id, the client generates one rather than sending none.
	if _, err := client.JobState(context.Background(), "job-1"); err != nil {
		t.Fatalf("JobState failed: %v", err)
	}
	if gotHeader == "" || gotHeader == "req-abc123" {
		t.Fatalf("generated X-Request-ID = %q, want a fresh id", gotHeader)
	}
}

func TestArtifactLinksDecodesPayload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("key"); got != "ens/ovt/2.0.0" {
			t.Errorf("key = %q", got)
		}
		json.NewEncoder(w).Encode(render.Links{
			RawURL:       "https://files/raw.mscz",
			ProcessedURL: "https://files/processed.mscz",
			ScorePDFURL:  "https://files/score.pdf",
			AudioURL:     "https://files/audio.mp3",
		})
	})

	links, err := client.ArtifactLinks(context.Background(), "ens/ovt/2.0.0")
	if err != nil {
		t.Fatalf("ArtifactLinks failed: %v", err)
	}
	if !links.Settled() {
		t.Fatal("expected settled links")
	}
	if links.AudioURL != "https://files/audio.mp3" {
		t.Fatalf("unexpected links: %+v", links)
	}
}
