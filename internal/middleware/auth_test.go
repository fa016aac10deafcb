package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/lumenart/backend/internal/models"
)

var testSecret = []byte("test-secret")

type mockLookup struct {
	accounts map[uuid.UUID]*models.Account
}

func (m *mockLookup) GetByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	acc, ok := m.accounts[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return acc, nil
}

func signToken(t *testing.T, secret []byte, sub string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": sub})
	signed, err := tok.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func runAuth(lookup AccountLookup, authz string) (*httptest.ResponseRecorder, *models.Account) {
	var seen *models.Account
	handler := BearerAuth(testSecret, lookup)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = AccountFromCtx(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/credits", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr, seen
}

func TestBearerAuth_ValidToken(t *testing.T) {
	acc := &models.Account{ID: uuid.New(), Email: "ada@example.com"}
	lookup := &mockLookup{accounts: map[uuid.UUID]*models.Account{acc.ID: acc}}

	rr, seen := runAuth(lookup, "Bearer "+signToken(t, testSecret, acc.ID.String()))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	if seen == nil || seen.ID != acc.ID {
		t.Error("account should be loaded into request context")
	}
}

func TestBearerAuth_MissingHeader(t *testing.T) {
	rr, _ := runAuth(&mockLookup{}, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestBearerAuth_WrongSecret(t *testing.T) {
	acc := &models.Account{ID: uuid.New()}
	lookup := &mockLookup{accounts: map[uuid.UUID]*models.Account{acc.ID: acc}}

	rr, _ := runAuth(lookup, "Bearer "+signToken(t, []byte("other-secret"), acc.ID.String()))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestBearerAuth_NonUUIDSubject(t *testing.T) {
	rr, _ := runAuth(&mockLookup{}, "Bearer "+signToken(t, testSecret, "not-a-uuid"))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestBearerAuth_UnknownAccount(t *testing.T) {
	rr, _ := runAuth(&mockLookup{}, "Bearer "+signToken(t, testSecret, uuid.New().String()))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}
