package eval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tandem-ai/tandem/internal/catalog"
	"github.com/tandem-ai/tandem/internal/route"
)

// Client talks the remote scored-session protocol: start a session, fetch
// cases one at a time, submit each result, finish for the final score.
type Client struct {
	baseURL string
	team    string
	http    *http.Client
}

// NewClient returns a scoring client for the server at baseURL.
func NewClient(baseURL, team string) *Client {
	return &Client{
		baseURL: baseURL,
		team:    team,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// Session identifies an in-progress scored run.
type Session struct {
	Token      string `json:"token"`
	TotalCases int    `json:"total_cases"`
}

// NextCase is the server's reply to a next-case fetch. Done marks the end
// of the session; the remaining fields are only set while Done is false.
type NextCase struct {
	Done       bool           `json:"done"`
	CaseNumber int            `json:"case_number"`
	ID         string         `json:"id"`
	Difficulty string         `json:"difficulty"`
	Messages   []Message      `json:"messages"`
	Tools      []catalog.Tool `json:"tools"`
}

// Submission is the per-case payload sent back to the server.
type Submission struct {
	FunctionCalls []map[string]any `json:"function_calls"`
	TotalTimeMS   float64          `json:"total_time_ms"`
	Source        string           `json:"source"`
}

// SubmitReply carries the server's score for one case.
type SubmitReply struct {
	F1 float64 `json:"f1"`
}

// FinalScore is the server's end-of-session report.
type FinalScore struct {
	Team               string  `json:"team"`
	Score              float64 `json:"score"`
	F1                 float64 `json:"f1"`
	AvgTimeMS          float64 `json:"avg_time_ms"`
	OnDevicePct        float64 `json:"on_device_pct"`
	LeaderboardUpdated bool    `json:"leaderboard_updated"`
}

// Start opens a scored session for the configured team.
func (c *Client) Start(ctx context.Context) (*Session, error) {
	var s Session
	if err := c.post(ctx, "/eval/start", "", map[string]any{"team": c.team}, &s); err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	return &s, nil
}

// Next fetches the next case of the session.
func (c *Client) Next(ctx context.Context, token string) (*NextCase, error) {
	var nc NextCase
	if err := c.get(ctx, "/eval/next", token, &nc); err != nil {
		return nil, fmt.Errorf("next case: %w", err)
	}
	return &nc, nil
}

// Submit reports one routed result and returns its score.
func (c *Client) Submit(ctx context.Context, token string, result *route.FinalResult) (*SubmitReply, error) {
	sub := Submission{
		FunctionCalls: make([]map[string]any, 0, len(result.FunctionCalls)),
		TotalTimeMS:   result.TotalTimeMS,
		Source:        result.Source,
	}
	for _, fc := range result.FunctionCalls {
		sub.FunctionCalls = append(sub.FunctionCalls, map[string]any{
			"name":      fc.Name,
			"arguments": fc.Arguments,
		})
	}

	var reply SubmitReply
	if err := c.post(ctx, "/eval/submit", token, sub, &reply); err != nil {
		return nil, fmt.Errorf("submit case: %w", err)
	}
	return &reply, nil
}

// Finish closes the session and returns the final score.
func (c *Client) Finish(ctx context.Context, token string) (*FinalScore, error) {
	var fs FinalScore
	if err := c.get(ctx, "/eval/finish", token, &fs); err != nil {
		return nil, fmt.Errorf("finish session: %w", err)
	}
	return &fs, nil
}

// CaseScore pairs a case with its server-reported score, for progress
// callbacks during a run.
type CaseScore struct {
	Case   NextCase
	Result *route.FinalResult
	F1     float64
}

// Run drives a full scored session: start, route and submit every case,
// finish. onCase, when non-nil, is invoked after each scored case.
func (c *Client) Run(ctx context.Context, factory RouterFactory, onCase func(CaseScore)) (*FinalScore, error) {
	session, err := c.Start(ctx)
	if err != nil {
		return nil, err
	}

	for {
		nc, err := c.Next(ctx, session.Token)
		if err != nil {
			return nil, err
		}
		if nc.Done {
			break
		}

		text := lastUserText(nc.Messages)
		r := factory(catalog.New(nc.Tools...))
		result, err := r.Route(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("route case %s: %w", nc.ID, err)
		}

		reply, err := c.Submit(ctx, session.Token, result)
		if err != nil {
			return nil, err
		}
		if onCase != nil {
			onCase(CaseScore{Case: *nc, Result: result, F1: reply.F1})
		}
	}

	return c.Finish(ctx, session.Token)
}

func lastUserText(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return msgs[i].Content
		}
	}
	return ""
}

func (c *Client) post(ctx context.Context, path, token string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, token), bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, token), nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) endpoint(path, token string) string {
	u := c.baseURL + path
	if token != "" {
		u += "?token=" + url.QueryEscape(token)
	}
	return u
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return fmt.Errorf("server: %s", e.Error)
		}
		return fmt.Errorf("server: status %d: %s", resp.StatusCode, truncateBody(raw))
	}
	return json.Unmarshal(raw, out)
}

func truncateBody(raw []byte) string {
	s := string(raw)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
