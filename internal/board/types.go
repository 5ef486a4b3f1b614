// Package board is the gateway to the external project board, the system of
// record for work item state. Cards live as issues in a GitHub repository;
// phase, review status, and implementation phase ride on scoped labels that
// only this package reads or writes. All other packages see typed values.
package board

import (
	"errors"
	"net/http"
	"time"

	"github.com/conveyorhq/conveyor/internal/status"
)

// API configuration constants.
const (
	// DefaultAPIEndpoint is the GitHub REST API base URL.
	DefaultAPIEndpoint = "https://api.github.com"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxRetries is the maximum number of retries for rate-limited requests.
	MaxRetries = 3

	// RetryDelay is the base delay between retries (exponential backoff).
	RetryDelay = time.Second

	// MaxPageSize is the maximum number of cards to fetch per page.
	MaxPageSize = 100

	// MaxPages bounds pagination to protect against malformed Link headers.
	MaxPages = 1000
)

// ErrCardNotFound is returned when no card matches the requested number.
var ErrCardNotFound = errors.New("card not found")

// ErrAlreadyMerged signals that a merge call hit a PR that was already
// merged. Callers fall back to reading the existing merge commit instead of
// treating this as a failure.
var ErrAlreadyMerged = errors.New("pull request already merged")

// ErrBranchNotFound is returned when deleting a branch that no longer
// exists. Cleanup paths tolerate it.
var ErrBranchNotFound = errors.New("branch not found")

// Client provides methods to interact with the board's GitHub REST API.
type Client struct {
	Token      string       // personal access token
	Owner      string       // repository owner (user or org)
	Repo       string       // repository name
	BaseURL    string       // API base URL (default: https://api.github.com)
	HTTPClient *http.Client // optional custom HTTP client
}

// Card is a work item's row on the board, already translated out of its
// label representation.
type Card struct {
	ID                  string              // board-global node ID (the tracker ref)
	Number              int                 // repository-scoped card number
	Title               string
	Body                string
	URL                 string
	State               string // "open" or "closed"
	Status              status.Status
	ReviewStatus        status.ReviewStatus
	ImplementationPhase string // "X/N" while a multi-phase item is in flight
	Labels              []string
	CreatedAt           *time.Time
	UpdatedAt           *time.Time
}

// Comment is a card comment.
type Comment struct {
	ID        int64      `json:"id"`
	Body      string     `json:"body"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// PRDetails describes a pull request's merge-relevant state.
type PRDetails struct {
	Number         int
	State          string // "open" or "closed"
	Merged         bool
	HeadBranch     string
	MergeCommitSHA string
}

// CardFilter narrows ListCards results. Zero values mean no filtering on
// that field.
type CardFilter struct {
	Status       status.Status
	ReviewStatus status.ReviewStatus
	State        string // "open", "closed", or "all" (default "open")
}

// issue is the wire shape of a GitHub issue.
type issue struct {
	ID          int64      `json:"id"`
	NodeID      string     `json:"node_id"`
	Number      int        `json:"number"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	State       string     `json:"state"`
	HTMLURL     string     `json:"html_url"`
	Labels      []label    `json:"labels"`
	CreatedAt   *time.Time `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
	PullRequest *pullRef   `json:"pull_request,omitempty"`
}

// pullRef marks an issue that is actually a pull request. The issues
// endpoint returns both; cards are never PRs.
type pullRef struct {
	URL string `json:"url,omitempty"`
}

// label is the wire shape of a GitHub label.
type label struct {
	Name string `json:"name"`
}

// pullRequest is the wire shape of a GitHub pull request.
type pullRequest struct {
	Number         int    `json:"number"`
	State          string `json:"state"`
	Merged         bool   `json:"merged"`
	MergeCommitSHA string `json:"merge_commit_sha"`
	Head           struct {
		Ref string `json:"ref"`
	} `json:"head"`
}
