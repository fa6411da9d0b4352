package backend

import (
	"net/http"
	"strings"
)

const (
	DefaultEndpoint = "http://localhost:8080/chat"

	DefaultBusinessContext = `You are a customer care assistant for this business.
Answer clearly, politely, and concisely.
If you don't know something, say so.`
)

type Option func(*Client)

func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if endpoint != "" {
			c.endpoint = endpoint
		}
	}
}

// WithAPIKey sets the key sent as a bearer token. Without one the request
// carries no Authorization header.
func WithAPIKey(apiKey string) Option {
	return func(c *Client) { c.apiKey = strings.TrimSpace(apiKey) }
}

func WithDeveloperEmail(email string) Option {
	return func(c *Client) { c.developerEmail = strings.TrimSpace(email) }
}

// WithBusinessContext replaces the instructions the prompt starts with.
func WithBusinessContext(context string) Option {
	return func(c *Client) {
		if strings.TrimSpace(context) != "" {
			c.businessContext = context
		}
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithHistoryLimit bounds how many past messages the client keeps and sends
// with each prompt. Zero keeps the whole conversation.
func WithHistoryLimit(limit int) Option {
	return func(c *Client) {
		if limit >= 0 {
			c.historyLimit = limit
		}
	}
}
