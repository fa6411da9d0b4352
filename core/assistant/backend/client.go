// Package backend sends utterances to the customer care chat backend.
//
// The backend is stateless: every request carries the business context and
// the conversation so far as a single prompt. [Client.Send] has the shape of
// an orchestration send function.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/koscakluka/ema-voice/core/capability"
	"github.com/koscakluka/ema-voice/internal/utils"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultErrorMessage      = "Something went wrong. Please try again."
	noResponseMessage        = "No response from server."
	connectionFailureMessage = "Connection issue. Please check your internet connection and try again."
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

type Client struct {
	endpoint        string
	apiKey          string
	developerEmail  string
	businessContext string
	historyLimit    int
	httpClient      *http.Client

	mu      sync.Mutex
	history []Message
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		endpoint:        DefaultEndpoint,
		businessContext: DefaultBusinessContext,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type requestBody struct {
	Prompt         string  `json:"prompt"`
	DeveloperEmail *string `json:"developer_email,omitempty"`
}

type responseBody struct {
	Answer *string `json:"answer"`
}

type errorBody struct {
	Error       string `json:"error"`
	UserMessage string `json:"user_message"`
	Code        string `json:"code"`
	ShowSocials bool   `json:"show_socials"`
}

// Send asks the backend to answer utterance in the context of the
// conversation so far. Failures are returned as [*capability.SendFailure]
// carrying the message to show the user. The utterance is remembered even
// when the request fails, the reply only when it succeeds.
func (c *Client) Send(ctx context.Context, utterance string) (string, error) {
	ctx, span := tracer.Start(ctx, "send to assistant backend")
	defer span.End()

	utterance = strings.TrimSpace(utterance)
	prompt := c.prompt(utterance)

	reqBody := requestBody{Prompt: prompt}
	if c.developerEmail != "" {
		reqBody.DeveloperEmail = utils.Ptr(c.developerEmail)
	}

	requestBodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", c.fail(ctx, &capability.SendFailure{
			UserMessage: defaultErrorMessage,
			Err:         fmt.Errorf("error marshalling JSON: %w", err),
		})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return "", c.fail(ctx, &capability.SendFailure{
			UserMessage: defaultErrorMessage,
			Err:         fmt.Errorf("error creating HTTP request: %w", err),
		})
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	span.SetAttributes(attribute.String("request.url", req.URL.String()))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", c.fail(ctx, &capability.SendFailure{
			Code:        "NETWORK_ERROR",
			UserMessage: connectionFailureMessage,
			Err:         fmt.Errorf("error sending request: %w", err),
		})
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", c.fail(ctx, parseErrorResponse(resp))
	}

	var body responseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", c.fail(ctx, &capability.SendFailure{
			UserMessage: defaultErrorMessage,
			Err:         fmt.Errorf("error unmarshalling JSON: %w", err),
		})
	}

	answer := noResponseMessage
	if body.Answer != nil {
		answer = *body.Answer
	}
	c.remember(Message{Role: RoleAssistant, Content: answer})
	return answer, nil
}

func parseErrorResponse(resp *http.Response) *capability.SendFailure {
	failure := &capability.SendFailure{
		UserMessage: defaultErrorMessage,
		Err:         fmt.Errorf("non-OK HTTP status: %s", resp.Status),
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return failure
	}
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return failure
	}

	failure.Code = body.Code
	failure.ShowSocials = body.ShowSocials
	switch {
	case strings.TrimSpace(body.UserMessage) != "":
		failure.UserMessage = body.UserMessage
	case strings.TrimSpace(body.Error) != "":
		failure.UserMessage = body.Error
	}
	return failure
}

func (c *Client) fail(ctx context.Context, failure *capability.SendFailure) error {
	span := trace.SpanFromContext(ctx)
	span.RecordError(failure)
	span.SetStatus(codes.Error, failure.Error())
	if failure.Code != "" {
		span.SetAttributes(attribute.String("response.error_code", failure.Code))
	}
	logger.WarnContext(ctx, "assistant backend request failed", "error", failure)
	return failure
}

// prompt records utterance in the conversation and returns the prompt
// asking for the assistant's next line.
func (c *Client) prompt(utterance string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	history := c.history
	message := Message{Role: RoleUser, Content: utterance}
	c.appendLocked(message)
	return buildPrompt(c.businessContext, history, message)
}

func (c *Client) remember(message Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appendLocked(message)
}

// appendLocked adds message and drops the oldest messages beyond the
// history limit.
func (c *Client) appendLocked(message Message) {
	history := append(c.history, message)
	if c.historyLimit > 0 && len(history) > c.historyLimit {
		history = append([]Message(nil), history[len(history)-c.historyLimit:]...)
	}
	c.history = history
}

func buildPrompt(businessContext string, history []Message, utterance Message) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(businessContext))
	b.WriteString("\n\nConversation:\n")
	for _, past := range history {
		writeLine(&b, past)
	}
	writeLine(&b, utterance)
	b.WriteString(strings.ToUpper(string(RoleAssistant)) + ":")
	return b.String()
}

func writeLine(b *strings.Builder, message Message) {
	b.WriteString(strings.ToUpper(string(message.Role)))
	b.WriteString(": ")
	b.WriteString(message.Content)
	b.WriteString("\n")
}

// History returns a copy of the conversation so far.
func (c *Client) History() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.history...)
}

// Reset forgets the conversation.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
}

// IsSendFailure reports whether err came from the backend and, if so, the
// failure.
func IsSendFailure(err error) (*capability.SendFailure, bool) {
	var failure *capability.SendFailure
	ok := errors.As(err, &failure)
	return failure, ok
}
