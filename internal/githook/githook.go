// Package githook registers the deploy endpoint as a GitHub repository
// webhook.
package githook

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// Outcome reports what Ensure did.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeExists  Outcome = "exists"
)

// Hook describes the webhook to register.
type Hook struct {
	OwnerRepo string
	URL       string
	Secret    string
	Events    []string
}

// Registrar creates repository webhooks through the GitHub API.
type Registrar struct {
	client *github.Client
}

// NewRegistrar creates a registrar authenticated with a personal access
// token.
func NewRegistrar(ctx context.Context, token string) (*Registrar, error) {
	if token == "" {
		return nil, fmt.Errorf("a GitHub token is required")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &Registrar{client: github.NewClient(oauth2.NewClient(ctx, ts))}, nil
}

// NewRegistrarWithClient wraps an existing client.
func NewRegistrarWithClient(client *github.Client) *Registrar {
	return &Registrar{client: client}
}

// Ensure creates the webhook unless one with the same URL already exists.
func (r *Registrar) Ensure(ctx context.Context, h Hook) (Outcome, error) {
	owner, repo, err := ParseOwnerRepo(h.OwnerRepo)
	if err != nil {
		return "", err
	}
	if h.URL == "" {
		return "", fmt.Errorf("webhook URL is required")
	}

	hooks, _, err := r.client.Repositories.ListHooks(ctx, owner, repo, nil)
	if err != nil {
		return "", fmt.Errorf("listing webhooks: %w", err)
	}

	for _, hook := range hooks {
		if hook.Config == nil {
			continue
		}
		if url, ok := hook.Config["url"].(string); ok && url == h.URL {
			return OutcomeExists, nil
		}
	}

	events := h.Events
	if len(events) == 0 {
		events = []string{"push"}
	}

	hookConfig := map[string]any{
		"url":          h.URL,
		"content_type": "json",
		"insecure_ssl": "0",
	}
	if h.Secret != "" {
		hookConfig["secret"] = h.Secret
	}

	active := true
	_, _, err = r.client.Repositories.CreateHook(ctx, owner, repo, &github.Hook{
		Events: events,
		Active: &active,
		Config: hookConfig,
	})
	if err != nil {
		return "", fmt.Errorf("creating webhook: %w", err)
	}

	return OutcomeCreated, nil
}

// ParseOwnerRepo splits "owner/repo".
func ParseOwnerRepo(s string) (owner, repo string, err error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid owner/repo format: %s", s)
	}
	return parts[0], parts[1], nil
}

// DeployURL joins the public base URL and the route prefix.
func DeployURL(baseURL, prefix string) string {
	return strings.TrimRight(baseURL, "/") + "/" + strings.Trim(prefix, "/")
}
