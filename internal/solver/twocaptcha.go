package solver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const twoCaptchaBaseURL = "https://2captcha.com"

// TwoCaptcha solves image CAPTCHAs through 2Captcha's human workers.
type TwoCaptcha struct {
	apiKey     string
	baseURL    string
	client     *http.Client
	pollDelay  time.Duration
	maxRetries int
}

// TwoCaptchaOption configures a TwoCaptcha solver.
type TwoCaptchaOption func(*TwoCaptcha)

// WithBaseURL points the solver at a different API host.
func WithBaseURL(u string) TwoCaptchaOption {
	return func(t *TwoCaptcha) { t.baseURL = strings.TrimRight(u, "/") }
}

// WithPollDelay sets the interval between result polls.
func WithPollDelay(d time.Duration) TwoCaptchaOption {
	return func(t *TwoCaptcha) { t.pollDelay = d }
}

// NewTwoCaptcha creates a new 2Captcha solver.
func NewTwoCaptcha(apiKey string, opts ...TwoCaptchaOption) *TwoCaptcha {
	t := &TwoCaptcha{
		apiKey:  apiKey,
		baseURL: twoCaptchaBaseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		pollDelay:  5 * time.Second,
		maxRetries: 24, // 2 minutes at the default delay
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns "2captcha".
func (t *TwoCaptcha) Name() string {
	return "2captcha"
}

// Solve uploads the image and polls for the answer.
func (t *TwoCaptcha) Solve(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", ErrEmptyImage
	}

	taskID, err := t.submitTask(ctx, image)
	if err != nil {
		return "", err
	}

	answer, err := t.pollResult(ctx, taskID)
	if err != nil {
		return "", err
	}
	return Normalize(answer), nil
}

type twoCaptchaResponse struct {
	Status  int    `json:"status"`
	Request string `json:"request"`
}

func (t *TwoCaptcha) submitTask(ctx context.Context, image []byte) (string, error) {
	values := url.Values{
		"key":    {t.apiKey},
		"json":   {"1"},
		"method": {"base64"},
		"body":   {base64.StdEncoding.EncodeToString(image)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/in.php", strings.NewReader(values.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	result, err := t.do(req)
	if err != nil {
		return "", &SolverError{Solver: t.Name(), Message: "submit failed", Cause: err}
	}
	if result.Status != 1 {
		return "", &SolverError{Solver: t.Name(), Message: result.Request}
	}
	return result.Request, nil
}

func (t *TwoCaptcha) pollResult(ctx context.Context, taskID string) (string, error) {
	values := url.Values{
		"key":    {t.apiKey},
		"action": {"get"},
		"id":     {taskID},
		"json":   {"1"},
	}

	for i := 0; i < t.maxRetries; i++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(t.pollDelay):
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/res.php?"+values.Encode(), nil)
		if err != nil {
			return "", err
		}
		result, err := t.do(req)
		if err != nil {
			continue
		}

		if result.Status == 1 {
			return result.Request, nil
		}

		switch result.Request {
		case "CAPCHA_NOT_READY":
			continue
		case "ERROR_CAPTCHA_UNSOLVABLE":
			// A worker could not read it; report it as an empty read.
			return "", nil
		default:
			if strings.HasPrefix(result.Request, "ERROR_") {
				return "", &SolverError{Solver: t.Name(), Message: result.Request}
			}
		}
	}

	return "", ErrSolverTimeout
}

func (t *TwoCaptcha) do(req *http.Request) (*twoCaptchaResponse, error) {
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var result twoCaptchaResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %s", string(body))
	}
	return &result, nil
}
