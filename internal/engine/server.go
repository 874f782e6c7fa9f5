package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"llmd/internal/common/fsutil"
)

// serverEngine talks to a llama.cpp-compatible server over HTTP using the
// OpenAI-style chat completions endpoint. Model selection is conveyed by
// name; the server is expected to have access to the same models root.
type serverEngine struct {
	baseURL    string
	apiKey     string
	reqTimeout time.Duration
	httpClient *http.Client
	// activeBytes tracks the on-disk size of models materialized through
	// this engine, as the admission view of engine memory pressure.
	activeBytes atomic.Uint64
}

// NewServerEngine constructs a server-backed engine.
func NewServerEngine(baseURL, apiKey string, reqTimeout, connectTimeout time.Duration) Engine {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	// Timeout stays 0 here: requests carry context deadlines instead, see
	// Generate which applies reqTimeout via context.
	cli := &http.Client{Transport: tr, Timeout: 0}
	return &serverEngine{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		reqTimeout: reqTimeout,
		httpClient: cli,
	}
}

func (e *serverEngine) ActiveMemory() uint64 {
	return e.activeBytes.Load()
}

func (e *serverEngine) Load(ctx context.Context, dir string) (Handle, error) {
	if !fsutil.PathExists(dir) {
		return nil, errors.New("model directory does not exist: " + dir)
	}
	size, err := fsutil.DirSize(dir)
	if err != nil {
		return nil, err
	}
	e.activeBytes.Add(uint64(size))
	return &serverHandle{
		engine: e,
		model:  filepath.Base(dir),
		size:   uint64(size),
	}, nil
}

// serverHandle represents one model resident behind the server.
type serverHandle struct {
	engine *serverEngine
	model  string
	size   uint64
	closed atomic.Bool
}

// chatCompletionRequest is the payload for /v1/chat/completions.
type chatCompletionRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (h *serverHandle) Generate(ctx context.Context, req Request) (string, error) {
	if h.closed.Load() {
		return "", errors.New("handle is closed")
	}
	if h.engine.reqTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.engine.reqTimeout)
		defer cancel()
	}

	messages := make([]chatMessage, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	for _, t := range req.History {
		messages = append(messages, chatMessage{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	payload := chatCompletionRequest{
		Model:       h.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      false,
	}
	body, _ := json.Marshal(payload)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.engine.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if h.engine.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+h.engine.apiKey)
	}
	resp, err := h.engine.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", ErrUnavailable("engine server unreachable: " + err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", errors.New("engine server http error: " + resp.Status + ": " + string(b))
	}
	var out chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", errors.New("engine server returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}

func (h *serverHandle) Close() error {
	if h.closed.CompareAndSwap(false, true) {
		// Subtract without going negative if sizes changed on disk meanwhile.
		for {
			cur := h.engine.activeBytes.Load()
			next := uint64(0)
			if cur > h.size {
				next = cur - h.size
			}
			if h.engine.activeBytes.CompareAndSwap(cur, next) {
				break
			}
		}
	}
	return nil
}
