package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/roach88/gigrank/internal/scoring"
)

// HTTPJudge talks to an OpenAI-compatible chat completions endpoint.
type HTTPJudge struct {
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float64
	MaxTokens   int
	Profile     scoring.Profile
	Client      *http.Client
}

// NewHTTPJudge creates a judge for baseURL (for example
// "http://localhost:8765").
func NewHTTPJudge(baseURL, modelName string, profile scoring.Profile) *HTTPJudge {
	return &HTTPJudge{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		Model:       modelName,
		Temperature: 0.15,
		MaxTokens:   4096,
		Profile:     profile,
		Client:      &http.Client{Timeout: 2 * DefaultJudgeTimeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

const classifySystem = `You evaluate freelance job postings for one freelancer.
Answer with a single JSON object with keys: summary_1line, scope_clarity,
budget_fit, technical_fit, client_quality (all 0.0-1.0 except the summary),
competition_signal (low|medium|high|extreme), estimated_effort_hours,
risk_flags (array), recommended_action (APPLY|WATCH|SKIP), recommended_bid,
opening_hook, reasoning.`

const rankSystem = `You prioritize analyzed freelance jobs. Answer with a JSON
array of objects with keys: job_key, priority_label (HOT|WARM|COLD),
time_sensitivity (urgent|normal|flexible), reason.`

// Classify implements Judge.
func (h *HTTPJudge) Classify(ctx context.Context, listing ListingView) (Assessment, error) {
	payload, err := json.Marshal(listing)
	if err != nil {
		return Assessment{}, fmt.Errorf("classify: %w", err)
	}
	prompt := h.profileSummary() + "\n\n## Job\n" + string(payload)

	content, err := h.chat(ctx, classifySystem, prompt)
	if err != nil {
		return Assessment{}, err
	}
	var a Assessment
	if err := json.Unmarshal([]byte(extractJSON(content)), &a); err != nil {
		return Assessment{}, fmt.Errorf("%w: decode assessment: %v", ErrJudgeUnavailable, err)
	}
	return a, nil
}

// Rank implements Judge. Both a bare array and {"rankings": [...]} are
// accepted.
func (h *HTTPJudge) Rank(ctx context.Context, batch []RankCandidate) ([]Ranking, error) {
	payload, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("rank: %w", err)
	}
	content, err := h.chat(ctx, rankSystem, "## Jobs\n"+string(payload))
	if err != nil {
		return nil, err
	}

	raw := []byte(extractJSON(content))
	var rankings []Ranking
	if err := json.Unmarshal(raw, &rankings); err == nil {
		return rankings, nil
	}
	var wrapped struct {
		Rankings []Ranking `json:"rankings"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("%w: decode rankings: %v", ErrJudgeUnavailable, err)
	}
	return wrapped.Rankings, nil
}

func (h *HTTPJudge) chat(ctx context.Context, system, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: h.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature: h.Temperature,
		MaxTokens:   h.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("chat: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.APIKey)
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrJudgeUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrJudgeUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: HTTP %d: %s", ErrJudgeUnavailable, resp.StatusCode, truncate(string(data), 200))
	}

	var cr chatResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrJudgeUnavailable, err)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", ErrJudgeUnavailable)
	}
	return cr.Choices[0].Message.Content, nil
}

func (h *HTTPJudge) profileSummary() string {
	p := h.Profile
	var b strings.Builder
	fmt.Fprintf(&b, "## Freelancer profile: %s\n", p.Name)
	fmt.Fprintf(&b, "Rate: $%.0f/hr, minimum project budget $%.0f, completed jobs: %d\n", p.HourlyRate, p.MinProjectBudget, p.CompletedJobs)
	fmt.Fprintf(&b, "Skills: %s\n", strings.Join(p.Skills, ", "))
	fmt.Fprintf(&b, "Avoid: %s", strings.Join(p.AvoidKeywords, ", "))
	return b.String()
}

// extractJSON strips markdown fences and surrounding prose from a model
// answer, returning the outermost JSON object or array.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		if j := strings.Index(rest, "```"); j >= 0 {
			s = strings.TrimSpace(rest[:j])
		}
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return s[start:]
	}
	return s[start : end+1]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
