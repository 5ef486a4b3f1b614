package board

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/conveyorhq/conveyor/internal/status"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient("test-token", "acme", "board").WithBaseURL(server.URL)
}

func TestFindCardByNumber(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/board/issues/42" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(issue{
			NodeID: "NODE42",
			Number: 42,
			Title:  "Fix login loop",
			State:  "open",
			Labels: []label{{Name: "phase:bug-investigation"}, {Name: "kind:bug"}},
		})
	})

	card, err := client.FindCardByNumber(context.Background(), 42)
	if err != nil {
		t.Fatalf("FindCardByNumber() error = %v", err)
	}
	if card.Status != status.StatusBugInvestigation {
		t.Errorf("Status = %q, want %q", card.Status, status.StatusBugInvestigation)
	}
}

func TestFindCardByNumberNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	})

	_, err := client.FindCardByNumber(context.Background(), 99)
	if !errors.Is(err, ErrCardNotFound) {
		t.Errorf("error = %v, want ErrCardNotFound", err)
	}
}

func TestFindCardByNumberRejectsPRs(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(issue{
			Number:      42,
			PullRequest: &pullRef{URL: "https://api.github.com/repos/acme/board/pulls/42"},
		})
	})

	_, err := client.FindCardByNumber(context.Background(), 42)
	if !errors.Is(err, ErrCardNotFound) {
		t.Errorf("error = %v, want ErrCardNotFound for a PR", err)
	}
}

func TestUpdateStatusReplacesPhaseLabel(t *testing.T) {
	var putLabels []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(issue{
				Number: 7,
				Labels: []label{{Name: "phase:backlog"}, {Name: "kind:feature"}},
			})
		case r.Method == http.MethodPut:
			var body struct {
				Labels []string `json:"labels"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			putLabels = body.Labels
			w.Write([]byte(`[]`))
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	})

	if err := client.UpdateStatus(context.Background(), 7, status.StatusTechnicalDesign); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	want := []string{"kind:feature", "phase:technical-design"}
	if len(putLabels) != 2 || putLabels[0] != want[0] || putLabels[1] != want[1] {
		t.Errorf("labels = %v, want %v", putLabels, want)
	}
}

func TestMergePullRequestAlreadyMerged(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			http.Error(w, `{"message":"Pull Request is not mergeable"}`, http.StatusMethodNotAllowed)
			return
		}
		// The follow-up details fetch confirms the PR was merged.
		json.NewEncoder(w).Encode(map[string]interface{}{
			"number":           12,
			"state":            "closed",
			"merged":           true,
			"merge_commit_sha": "abc123def",
		})
	})

	_, err := client.MergePullRequest(context.Background(), 12, "merge", "")
	if !errors.Is(err, ErrAlreadyMerged) {
		t.Fatalf("error = %v, want ErrAlreadyMerged", err)
	}

	sha, err := client.GetMergeCommitSHA(context.Background(), 12)
	if err != nil {
		t.Fatalf("GetMergeCommitSHA() error = %v", err)
	}
	if sha != "abc123def" {
		t.Errorf("sha = %q, want abc123def", sha)
	}
}

func TestDeleteBranchTolerance(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Reference does not exist"}`, http.StatusUnprocessableEntity)
	})

	err := client.DeleteBranch(context.Background(), "phase-2")
	if !errors.Is(err, ErrBranchNotFound) {
		t.Errorf("error = %v, want ErrBranchNotFound", err)
	}
}

// flakyTransport fails the first n calls with a connection error and records
// the body each attempt actually carried.
type flakyTransport struct {
	failures int
	calls    int
	bodies   []string
}

func (ft *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ft.calls++
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		req.Body.Close()
	}
	ft.bodies = append(ft.bodies, string(body))
	if ft.calls <= ft.failures {
		return nil, errors.New("connection reset by peer")
	}
	return &http.Response{
		StatusCode: http.StatusCreated,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(`{}`)),
	}, nil
}

func TestRetryResendsFullBody(t *testing.T) {
	ft := &flakyTransport{failures: 1}
	client := NewClient("test-token", "acme", "board").
		WithHTTPClient(&http.Client{Transport: ft})

	if err := client.AddComment(context.Background(), 7, "phase breakdown"); err != nil {
		t.Fatalf("AddComment() error = %v", err)
	}
	if ft.calls != 2 {
		t.Fatalf("attempts = %d, want 2", ft.calls)
	}
	if !strings.Contains(ft.bodies[0], "phase breakdown") {
		t.Errorf("first attempt body = %q", ft.bodies[0])
	}
	if ft.bodies[1] != ft.bodies[0] {
		t.Errorf("retry body = %q, want the original body %q", ft.bodies[1], ft.bodies[0])
	}
}

func TestFindCommentByMarker(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]Comment{
			{ID: 1, Body: "looks good"},
			{ID: 2, Body: "<!-- conveyor:phase-plan -->\n1. Schema"},
		})
	})

	comment, err := client.FindCommentByMarker(context.Background(), 5, "<!-- conveyor:phase-plan -->")
	if err != nil {
		t.Fatalf("FindCommentByMarker() error = %v", err)
	}
	if comment == nil || comment.ID != 2 {
		t.Errorf("comment = %+v, want ID 2", comment)
	}
}

func TestFindCommentByMarkerMiss(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	comment, err := client.FindCommentByMarker(context.Background(), 5, "<!-- conveyor:phase-plan -->")
	if err != nil {
		t.Fatalf("FindCommentByMarker() error = %v", err)
	}
	if comment != nil {
		t.Errorf("comment = %+v, want nil on miss", comment)
	}
}
