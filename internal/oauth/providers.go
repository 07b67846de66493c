package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
)

const maxProviderResponseBytes = 1 << 20

// Provider exchanges an authorization code for a normalized identity profile.
type Provider interface {
	Name() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*Profile, error)
}

// Registry holds the configured providers keyed by name.
type Registry map[string]Provider

func (r Registry) Add(p Provider) { r[p.Name()] = p }

func (r Registry) Get(name string) (Provider, bool) {
	p, ok := r[strings.ToLower(name)]
	return p, ok
}

// --- google ---

type GoogleProvider struct {
	config *oauth2.Config
}

func NewGoogleProvider(clientID, clientSecret, redirectURL string) *GoogleProvider {
	return &GoogleProvider{config: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     google.Endpoint,
	}}
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("google code exchange: %w", err)
	}

	var info struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		VerifiedEmail bool   `json:"verified_email"`
		GivenName     string `json:"given_name"`
		FamilyName    string `json:"family_name"`
	}
	if err := fetchJSON(ctx, p.config.Client(ctx, token), "https://www.googleapis.com/oauth2/v2/userinfo", &info); err != nil {
		return nil, fmt.Errorf("google userinfo: %w", err)
	}
	if info.ID == "" {
		return nil, fmt.Errorf("google userinfo: missing subject id")
	}

	profile := &Profile{
		Provider:   p.Name(),
		ProviderID: info.ID,
		FirstName:  info.GivenName,
		LastName:   info.FamilyName,
	}
	if info.VerifiedEmail {
		profile.Email = info.Email
	}
	return profile, nil
}

// --- github ---

type GithubProvider struct {
	config *oauth2.Config
	apiURL string
}

func NewGithubProvider(clientID, clientSecret, redirectURL string) *GithubProvider {
	return &GithubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
		apiURL: "https://api.github.com",
	}
}

func (p *GithubProvider) Name() string { return "github" }

func (p *GithubProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

func (p *GithubProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("github code exchange: %w", err)
	}
	client := p.config.Client(ctx, token)

	var user struct {
		ID    int64  `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := fetchJSON(ctx, client, p.apiURL+"/user", &user); err != nil {
		return nil, fmt.Errorf("github user: %w", err)
	}
	if user.ID == 0 {
		return nil, fmt.Errorf("github user: missing id")
	}

	email := user.Email
	if email == "" {
		// The profile email is hidden for most accounts; the emails endpoint
		// still lists the verified primary.
		email, err = p.primaryEmail(ctx, client)
		if err != nil {
			return nil, err
		}
	}

	first, last := splitName(user.Name)
	return &Profile{
		Provider:   p.Name(),
		ProviderID: strconv.FormatInt(user.ID, 10),
		Email:      email,
		FirstName:  first,
		LastName:   last,
	}, nil
}

func (p *GithubProvider) primaryEmail(ctx context.Context, client *http.Client) (string, error) {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := fetchJSON(ctx, client, p.apiURL+"/user/emails", &emails); err != nil {
		return "", fmt.Errorf("github user emails: %w", err)
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	return "", nil
}

func splitName(full string) (string, string) {
	full = strings.TrimSpace(full)
	if full == "" {
		return "", ""
	}
	parts := strings.SplitN(full, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

func fetchJSON(ctx context.Context, client *http.Client, url string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return json.NewDecoder(io.LimitReader(resp.Body, maxProviderResponseBytes)).Decode(dest)
}
