package identity

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// StaticUser is one account served by the Static provider.
type StaticUser struct {
	ID            string   `yaml:"id"`
	Email         string   `yaml:"email"`
	Password      string   `yaml:"password"`
	RecoveryEmail string   `yaml:"recovery_email"`
	Tokens        []string `yaml:"tokens"`
}

type staticFile struct {
	Users []StaticUser `yaml:"users"`
}

// Static is an in-memory provider for development and tests. Passwords are
// stored in plain text; do not use it in production.
type Static struct {
	byEmail map[string]StaticUser
	byToken map[string]string
	byAgent map[string]StaticUser

	mu    sync.Mutex
	links []ActionLink
}

// NewStatic builds a provider from users.
func NewStatic(users []StaticUser) (*Static, error) {
	s := &Static{
		byEmail: make(map[string]StaticUser, len(users)),
		byToken: make(map[string]string),
		byAgent: make(map[string]StaticUser, len(users)),
	}

	for _, u := range users {
		if strings.TrimSpace(u.ID) == "" || strings.TrimSpace(u.Email) == "" {
			return nil, fmt.Errorf("identity: static user requires id and email")
		}
		email := strings.ToLower(strings.TrimSpace(u.Email))
		if _, dup := s.byEmail[email]; dup {
			return nil, fmt.Errorf("identity: duplicate static user %q", u.Email)
		}
		agent := AgentID(email)
		if prev, dup := s.byAgent[agent]; dup {
			return nil, fmt.Errorf("identity: static users %q and %q share agent id %q", prev.Email, u.Email, agent)
		}
		s.byEmail[email] = u
		s.byAgent[agent] = u
		for _, tok := range u.Tokens {
			s.byToken[tok] = u.ID
		}
	}

	return s, nil
}

// LoadStaticFile reads users from a YAML document of the form
//
//	users:
//	  - id: u-1
//	    email: agent7@directorate.test
//	    password: secret
//	    recovery_email: someone@example.com
//	    tokens: [dev-token]
func LoadStaticFile(path string) (*Static, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("identity: failed to read users file %q: %w", path, err)
	}

	var file staticFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("identity: invalid users file: %w", err)
	}
	return NewStatic(file.Users)
}

// CurrentUserID resolves a bearer token.
func (s *Static) CurrentUserID(r *http.Request) (string, bool, error) {
	tok := BearerToken(r)
	if tok == "" {
		return "", false, nil
	}
	id, ok := s.byToken[tok]
	return id, ok, nil
}

// Authenticate compares the password in constant time.
func (s *Static) Authenticate(_ context.Context, email, password string) error {
	u, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok || u.Password == "" {
		return ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(u.Password), []byte(password)) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}

// VerifyAgentEmailPair matches agentID to a user whose recovery email
// equals email, ignoring case.
func (s *Static) VerifyAgentEmailPair(_ context.Context, agentID, email string) (bool, error) {
	u, ok := s.byAgent[strings.ToUpper(strings.TrimSpace(agentID))]
	if !ok || u.RecoveryEmail == "" {
		return false, nil
	}
	return strings.EqualFold(strings.TrimSpace(u.RecoveryEmail), strings.TrimSpace(email)), nil
}

// SendPasswordRecoveryLink records and returns a random recovery link.
func (s *Static) SendPasswordRecoveryLink(_ context.Context, email, redirectTo string) (ActionLink, error) {
	target, err := url.Parse(redirectTo)
	if err != nil {
		return ActionLink{}, fmt.Errorf("identity: invalid redirect target: %w", err)
	}
	q := target.Query()
	q.Set("token", uuid.NewString())
	q.Set("type", "recovery")
	target.RawQuery = q.Encode()

	link := ActionLink{Email: email, URL: target.String()}

	s.mu.Lock()
	s.links = append(s.links, link)
	s.mu.Unlock()

	return link, nil
}

// SentLinks returns the links issued so far.
func (s *Static) SentLinks() []ActionLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ActionLink(nil), s.links...)
}
