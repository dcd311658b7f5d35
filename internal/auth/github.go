package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// GitHubUser is the subset of the GitHub profile we persist.
type GitHubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// Exchanger turns an OAuth authorization code into a GitHub identity.
// Tests substitute a fake; production uses the real OAuth endpoints.
type Exchanger interface {
	Exchange(ctx context.Context, code string) (*GitHubUser, error)
}

type GitHubExchanger struct {
	config  *oauth2.Config
	userURL string
}

func NewGitHubExchanger(clientID, clientSecret, redirectURL string) *GitHubExchanger {
	return &GitHubExchanger{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     github.Endpoint,
			Scopes:       []string{"read:user", "user:email"},
		},
		userURL: "https://api.github.com/user",
	}
}

func (e *GitHubExchanger) Exchange(ctx context.Context, code string) (*GitHubUser, error) {
	token, err := e.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	client := e.config.Client(ctx, token)
	resp, err := client.Get(e.userURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch github user: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github user endpoint returned %d", resp.StatusCode)
	}

	var user GitHubUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode github user: %w", err)
	}
	return &user, nil
}
