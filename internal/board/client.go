package board

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/conveyorhq/conveyor/internal/status"
)

// NewClient creates a new board client.
func NewClient(token, owner, repo string) *Client {
	return &Client{
		Token:   token,
		Owner:   owner,
		Repo:    repo,
		BaseURL: DefaultAPIEndpoint,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// WithHTTPClient returns a new client with a custom HTTP client.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	return &Client{
		Token:      c.Token,
		Owner:      c.Owner,
		Repo:       c.Repo,
		BaseURL:    c.BaseURL,
		HTTPClient: httpClient,
	}
}

// WithBaseURL returns a new client with a custom base URL (for testing or
// GitHub Enterprise).
func (c *Client) WithBaseURL(baseURL string) *Client {
	return &Client{
		Token:      c.Token,
		Owner:      c.Owner,
		Repo:       c.Repo,
		BaseURL:    baseURL,
		HTTPClient: c.HTTPClient,
	}
}

// apiError carries the HTTP status of a failed API call so callers can
// branch on not-found and conflict responses.
type apiError struct {
	StatusCode int
	Body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("API error: %s (status %d)", e.Body, e.StatusCode)
}

// repoPath returns the "owner/repo" path segment.
func (c *Client) repoPath() string {
	return c.Owner + "/" + c.Repo
}

// buildURL constructs a full API URL.
func (c *Client) buildURL(path string, params map[string]string) string {
	u := c.BaseURL + path

	if len(params) > 0 {
		values := url.Values{}
		for k, v := range params {
			values.Set(k, v)
		}
		u += "?" + values.Encode()
	}

	return u
}

// doRequest performs an HTTP request with authentication and retry logic.
func (c *Client) doRequest(ctx context.Context, method, urlStr string, body interface{}) ([]byte, http.Header, error) {
	var jsonBody []byte
	if body != nil {
		var err error
		if jsonBody, err = json.Marshal(body); err != nil {
			return nil, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		// Each attempt gets a fresh reader; a retry must never send a body
		// the previous attempt already consumed.
		var reqBody io.Reader
		if jsonBody != nil {
			reqBody = bytes.NewReader(jsonBody)
		}
		req, err := http.NewRequestWithContext(ctx, method, urlStr, reqBody)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+c.Token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed (attempt %d/%d): %w", attempt+1, MaxRetries+1, err)
			continue
		}

		const maxResponseSize = 50 * 1024 * 1024
		respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		_ = resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response (attempt %d/%d): %w", attempt+1, MaxRetries+1, err)
			continue
		}

		// Handle rate limiting (403 with X-RateLimit-Remaining: 0, or 429).
		if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0") {
			delay := RetryDelay * time.Duration(1<<attempt)
			if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
				if seconds, err := strconv.Atoi(retryAfter); err == nil {
					delay = time.Duration(seconds) * time.Second
				}
			}
			lastErr = fmt.Errorf("rate limited (attempt %d/%d)", attempt+1, MaxRetries+1)
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-time.After(delay):
				continue
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, nil, &apiError{StatusCode: resp.StatusCode, Body: string(respBody)}
		}

		return respBody, resp.Header, nil
	}

	return nil, nil, fmt.Errorf("max retries (%d) exceeded: %w", MaxRetries+1, lastErr)
}

// linkNextPattern matches the "next" relation in GitHub Link headers.
var linkNextPattern = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// hasNextPage checks the Link header for a next page URL and returns it.
func hasNextPage(headers http.Header) (string, bool) {
	link := headers.Get("Link")
	if link == "" {
		return "", false
	}
	matches := linkNextPattern.FindStringSubmatch(link)
	if len(matches) < 2 {
		return "", false
	}
	return matches[1], true
}

// isStatus reports whether err is an API error with the given HTTP status.
func isStatus(err error, code int) bool {
	var apiErr *apiError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// getIssue fetches the raw wire issue for a card number.
func (c *Client) getIssue(ctx context.Context, number int) (*issue, error) {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues/"+strconv.Itoa(number), nil)
	respBody, _, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, fmt.Errorf("card #%d: %w", number, ErrCardNotFound)
		}
		return nil, fmt.Errorf("failed to fetch card #%d: %w", number, err)
	}

	var gh issue
	if err := json.Unmarshal(respBody, &gh); err != nil {
		return nil, fmt.Errorf("failed to parse card response: %w", err)
	}
	if gh.PullRequest != nil {
		return nil, fmt.Errorf("card #%d: %w", number, ErrCardNotFound)
	}
	return &gh, nil
}

// FindCardByNumber retrieves a single card by its number. This is the
// validation gate every flow relies on: a miss means the work item has no
// presence in the system of record.
func (c *Client) FindCardByNumber(ctx context.Context, number int) (*Card, error) {
	gh, err := c.getIssue(ctx, number)
	if err != nil {
		return nil, err
	}
	return cardFromIssue(gh), nil
}

// ListCards retrieves cards matching the filter, translated out of their
// label representation. Pull requests are filtered out (GitHub returns PRs
// in the issues endpoint).
func (c *Client) ListCards(ctx context.Context, filter CardFilter) ([]*Card, error) {
	var all []*Card
	page := 1

	state := filter.State
	if state == "" {
		state = "open"
	}

	labels := make([]string, 0, 2)
	if filter.Status != "" {
		labels = append(labels, StatusLabel(filter.Status))
	}
	if filter.ReviewStatus != "" {
		labels = append(labels, ReviewLabel(filter.ReviewStatus))
	}

	for {
		select {
		case <-ctx.Done():
			return all, ctx.Err()
		default:
		}

		params := map[string]string{
			"per_page": strconv.Itoa(MaxPageSize),
			"page":     strconv.Itoa(page),
			"state":    state,
		}
		if len(labels) > 0 {
			params["labels"] = strings.Join(labels, ",")
		}

		urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues", params)
		respBody, headers, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to list cards: %w", err)
		}

		var issues []issue
		if err := json.Unmarshal(respBody, &issues); err != nil {
			return nil, fmt.Errorf("failed to parse card list response: %w", err)
		}

		for i := range issues {
			if issues[i].PullRequest == nil {
				all = append(all, cardFromIssue(&issues[i]))
			}
		}

		if _, ok := hasNextPage(headers); !ok {
			break
		}
		page++

		if page > MaxPages {
			return nil, fmt.Errorf("pagination limit exceeded: stopped after %d pages", MaxPages)
		}
	}

	return all, nil
}

// CreateCard creates a new card on the board.
func (c *Client) CreateCard(ctx context.Context, title, body string, labels []string) (*Card, error) {
	reqBody := map[string]interface{}{
		"title": title,
		"body":  body,
	}
	if len(labels) > 0 {
		reqBody["labels"] = labels
	}

	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues", nil)
	respBody, _, err := c.doRequest(ctx, http.MethodPost, urlStr, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create card: %w", err)
	}

	var gh issue
	if err := json.Unmarshal(respBody, &gh); err != nil {
		return nil, fmt.Errorf("failed to parse create response: %w", err)
	}

	return cardFromIssue(&gh), nil
}

// setLabels replaces the full label set on a card.
func (c *Client) setLabels(ctx context.Context, number int, labels []string) error {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues/"+strconv.Itoa(number)+"/labels", nil)
	if _, _, err := c.doRequest(ctx, http.MethodPut, urlStr, map[string]interface{}{"labels": labels}); err != nil {
		return fmt.Errorf("failed to set labels on card #%d: %w", number, err)
	}
	return nil
}

// replaceScoped swaps the value under a scoped label prefix on a card. An
// empty value removes the scoped label entirely.
func (c *Client) replaceScoped(ctx context.Context, number int, prefix, value string) error {
	gh, err := c.getIssue(ctx, number)
	if err != nil {
		return err
	}
	current := make([]string, 0, len(gh.Labels))
	for _, l := range gh.Labels {
		current = append(current, l.Name)
	}
	return c.setLabels(ctx, number, replaceScopedLabel(current, prefix, value))
}

// UpdateStatus moves a card to a new phase.
func (c *Client) UpdateStatus(ctx context.Context, number int, st status.Status) error {
	return c.replaceScoped(ctx, number, phaseLabelPrefix, statusLabels[st])
}

// UpdateReviewStatus sets the review sub-state on a card.
func (c *Client) UpdateReviewStatus(ctx context.Context, number int, rs status.ReviewStatus) error {
	return c.replaceScoped(ctx, number, reviewLabelPrefix, reviewLabels[rs])
}

// ClearReviewStatus removes any review sub-state from a card.
func (c *Client) ClearReviewStatus(ctx context.Context, number int) error {
	return c.replaceScoped(ctx, number, reviewLabelPrefix, "")
}

// SetImplementationPhase records the "X/N" tracker on a card.
func (c *Client) SetImplementationPhase(ctx context.Context, number int, phase string) error {
	return c.replaceScoped(ctx, number, implLabelPrefix, phase)
}

// ClearImplementationPhase removes the "X/N" tracker from a card.
func (c *Client) ClearImplementationPhase(ctx context.Context, number int) error {
	return c.replaceScoped(ctx, number, implLabelPrefix, "")
}

// UpdateTitle renames a card.
func (c *Client) UpdateTitle(ctx context.Context, number int, title string) error {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues/"+strconv.Itoa(number), nil)
	if _, _, err := c.doRequest(ctx, http.MethodPatch, urlStr, map[string]interface{}{"title": title}); err != nil {
		return fmt.Errorf("failed to update title on card #%d: %w", number, err)
	}
	return nil
}

// CloseCard closes a card on the board.
func (c *Client) CloseCard(ctx context.Context, number int) error {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues/"+strconv.Itoa(number), nil)
	if _, _, err := c.doRequest(ctx, http.MethodPatch, urlStr, map[string]interface{}{"state": "closed"}); err != nil {
		return fmt.Errorf("failed to close card #%d: %w", number, err)
	}
	return nil
}

// AddComment posts a comment on a card.
func (c *Client) AddComment(ctx context.Context, number int, body string) error {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues/"+strconv.Itoa(number)+"/comments", nil)
	if _, _, err := c.doRequest(ctx, http.MethodPost, urlStr, map[string]interface{}{"body": body}); err != nil {
		return fmt.Errorf("failed to comment on card #%d: %w", number, err)
	}
	return nil
}

// FindCommentByMarker scans a card's comments for one containing the marker
// string. Returns nil, nil when no comment matches; absence is an expected
// outcome, not an error.
func (c *Client) FindCommentByMarker(ctx context.Context, number int, marker string) (*Comment, error) {
	page := 1
	for {
		params := map[string]string{
			"per_page": strconv.Itoa(MaxPageSize),
			"page":     strconv.Itoa(page),
		}
		urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues/"+strconv.Itoa(number)+"/comments", params)
		respBody, headers, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to list comments on card #%d: %w", number, err)
		}

		var comments []Comment
		if err := json.Unmarshal(respBody, &comments); err != nil {
			return nil, fmt.Errorf("failed to parse comments response: %w", err)
		}

		for i := range comments {
			if strings.Contains(comments[i].Body, marker) {
				return &comments[i], nil
			}
		}

		if _, ok := hasNextPage(headers); !ok {
			return nil, nil
		}
		page++

		if page > MaxPages {
			return nil, fmt.Errorf("pagination limit exceeded: stopped after %d pages", MaxPages)
		}
	}
}

// MergePullRequest merges a PR and returns the merge commit SHA. If the PR
// turns out to be already merged, it returns ErrAlreadyMerged so callers can
// fall back to the existing merge commit.
func (c *Client) MergePullRequest(ctx context.Context, number int, title, body string) (string, error) {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/pulls/"+strconv.Itoa(number)+"/merge", nil)
	respBody, _, err := c.doRequest(ctx, http.MethodPut, urlStr, map[string]interface{}{
		"commit_title":   title,
		"commit_message": body,
		"merge_method":   "squash",
	})
	if err != nil {
		// The merge endpoint rejects already-merged PRs with a conflict-shaped
		// response. Confirm against the PR itself before reporting failure.
		if isStatus(err, http.StatusMethodNotAllowed) || isStatus(err, http.StatusConflict) {
			details, detailsErr := c.GetPRDetails(ctx, number)
			if detailsErr == nil && details.Merged {
				return "", fmt.Errorf("PR #%d: %w", number, ErrAlreadyMerged)
			}
		}
		return "", fmt.Errorf("failed to merge PR #%d: %w", number, err)
	}

	var result struct {
		SHA    string `json:"sha"`
		Merged bool   `json:"merged"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to parse merge response: %w", err)
	}
	return result.SHA, nil
}

// GetMergeCommitSHA returns the merge commit of an already-merged PR.
func (c *Client) GetMergeCommitSHA(ctx context.Context, number int) (string, error) {
	details, err := c.GetPRDetails(ctx, number)
	if err != nil {
		return "", err
	}
	if details.MergeCommitSHA == "" {
		return "", fmt.Errorf("PR #%d has no merge commit", number)
	}
	return details.MergeCommitSHA, nil
}

// GetPRDetails fetches merge-relevant PR state.
func (c *Client) GetPRDetails(ctx context.Context, number int) (*PRDetails, error) {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/pulls/"+strconv.Itoa(number), nil)
	respBody, _, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch PR #%d: %w", number, err)
	}

	var pr pullRequest
	if err := json.Unmarshal(respBody, &pr); err != nil {
		return nil, fmt.Errorf("failed to parse PR response: %w", err)
	}
	return &PRDetails{
		Number:         pr.Number,
		State:          pr.State,
		Merged:         pr.Merged,
		HeadBranch:     pr.Head.Ref,
		MergeCommitSHA: pr.MergeCommitSHA,
	}, nil
}

// CreateRevertPR opens a pull request from a previously pushed revert branch
// and returns its number. The revert branch is named after the reverted
// commit by the tooling that pushed it.
func (c *Client) CreateRevertPR(ctx context.Context, sha string, originalPR, cardNumber int) (int, error) {
	short := sha
	if len(short) > 8 {
		short = short[:8]
	}
	reqBody := map[string]interface{}{
		"title": fmt.Sprintf("Revert #%d", originalPR),
		"head":  "revert-" + short,
		"base":  "main",
		"body":  fmt.Sprintf("Reverts %s from #%d.\n\nRefs #%d.", sha, originalPR, cardNumber),
	}

	urlStr := c.buildURL("/repos/"+c.repoPath()+"/pulls", nil)
	respBody, _, err := c.doRequest(ctx, http.MethodPost, urlStr, reqBody)
	if err != nil {
		return 0, fmt.Errorf("failed to create revert PR for %s: %w", sha, err)
	}

	var pr pullRequest
	if err := json.Unmarshal(respBody, &pr); err != nil {
		return 0, fmt.Errorf("failed to parse revert PR response: %w", err)
	}
	return pr.Number, nil
}

// DeleteBranch deletes a branch ref. Returns ErrBranchNotFound when the
// branch is already gone so cleanup loops can tolerate repeats.
func (c *Client) DeleteBranch(ctx context.Context, name string) error {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/git/refs/heads/"+name, nil)
	if _, _, err := c.doRequest(ctx, http.MethodDelete, urlStr, nil); err != nil {
		if isStatus(err, http.StatusNotFound) || isStatus(err, http.StatusUnprocessableEntity) {
			return fmt.Errorf("branch %q: %w", name, ErrBranchNotFound)
		}
		return fmt.Errorf("failed to delete branch %q: %w", name, err)
	}
	return nil
}
