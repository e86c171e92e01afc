package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"swiim/backend/internal/domain"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func adminStub() *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      "admin",
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	stub := adminStub()

	manager := NewAuthManager("test-secret", time.Hour, stub)
	_, err := manager.Login(domain.LoginRequest{
		Username: "admin",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	users, err := stub.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if users[0].Password == "admin123" {
		t.Fatalf("expected password to be upgraded from plain-text")
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", users[0].Password)
	}
}

func TestLoginIssuesParsableToken(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, adminStub())

	resp, err := manager.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != "admin" {
		t.Fatalf("expected admin role, got %q", resp.Role)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "admin" || actor.Role != "admin" {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	issuer := NewAuthManager("secret-one", time.Hour, adminStub())
	verifier := NewAuthManager("secret-two", time.Hour, adminStub())

	resp, err := issuer.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestLoginRejectsInactiveUser(t *testing.T) {
	stub := adminStub()
	stub.users["analyst"] = domain.UserAccount{
		Username:  "analyst",
		Password:  "analyst123",
		Role:      "analyst",
		Active:    false,
		CreatedAt: time.Now().UTC(),
	}

	manager := NewAuthManager("test-secret", time.Hour, stub)
	if _, err := manager.Login(domain.LoginRequest{Username: "analyst", Password: "analyst123"}); err == nil {
		t.Fatalf("expected inactive account login to fail")
	}
}

func TestCreateAnalystStoresPasswordHash(t *testing.T) {
	stub := adminStub()
	manager := NewAuthManager("test-secret", time.Hour, stub)

	analyst, err := manager.CreateAnalyst(domain.AnalystCreateRequest{
		Username: "marion",
		Password: "pass1234",
	})
	if err != nil {
		t.Fatalf("create analyst failed: %v", err)
	}
	if analyst.Username != "marion" {
		t.Fatalf("unexpected username %s", analyst.Username)
	}
	if analyst.Role != "analyst" {
		t.Fatalf("expected analyst role, got %s", analyst.Role)
	}

	users, err := stub.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	var found *domain.UserAccount
	for i := range users {
		if users[i].Username == "marion" {
			found = &users[i]
			break
		}
	}
	if found == nil {
		t.Fatalf("expected analyst to be saved")
	}
	if found.Password == "pass1234" {
		t.Fatalf("expected analyst password to be hashed")
	}
	if !strings.HasPrefix(found.Password, "$2") {
		t.Fatalf("expected bcrypt hash prefix, got %s", found.Password)
	}

	if _, err := manager.Login(domain.LoginRequest{Username: "marion", Password: "pass1234"}); err != nil {
		t.Fatalf("login with hashed analyst failed: %v", err)
	}
}

func TestCreateAnalystValidation(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, adminStub())

	if _, err := manager.CreateAnalyst(domain.AnalystCreateRequest{Username: "ab", Password: "pass1234"}); err == nil {
		t.Fatalf("expected short username to be rejected")
	}
	if _, err := manager.CreateAnalyst(domain.AnalystCreateRequest{Username: "marion", Password: "short"}); err == nil {
		t.Fatalf("expected short password to be rejected")
	}
	if _, err := manager.CreateAnalyst(domain.AnalystCreateRequest{Username: "admin", Password: "pass1234"}); err == nil {
		t.Fatalf("expected duplicate username to be rejected")
	}
}

func TestListAnalystsIsSorted(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, adminStub())

	for _, name := range []string{"zoelle", "amelie", "martin"} {
		if _, err := manager.CreateAnalyst(domain.AnalystCreateRequest{Username: name, Password: "pass1234"}); err != nil {
			t.Fatalf("create analyst %s failed: %v", name, err)
		}
	}

	analysts := manager.ListAnalysts()
	if len(analysts) != 3 {
		t.Fatalf("expected 3 analysts, got %d", len(analysts))
	}
	for i := 1; i < len(analysts); i++ {
		if analysts[i-1].Username > analysts[i].Username {
			t.Fatalf("expected sorted analysts, got %v", analysts)
		}
	}
}
