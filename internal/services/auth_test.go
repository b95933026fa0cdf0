package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/yungbote/academy-backend/internal/platform/apierr"
	"github.com/yungbote/academy-backend/internal/platform/logger"
	"github.com/yungbote/academy-backend/internal/requestdata"
	"github.com/yungbote/academy-backend/internal/types"
)

type fakeUserRepo struct {
	users map[uuid.UUID]*types.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[uuid.UUID]*types.User{}}
}

func (f *fakeUserRepo) Create(ctx context.Context, tx *gorm.DB, users []*types.User) ([]*types.User, error) {
	for _, u := range users {
		cp := *u
		f.users[u.ID] = &cp
	}
	return users, nil
}

func (f *fakeUserRepo) GetByIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.User, error) {
	var out []*types.User
	for _, id := range userIDs {
		if u, ok := f.users[id]; ok {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeUserRepo) GetByEmails(ctx context.Context, tx *gorm.DB, emails []string) ([]*types.User, error) {
	var out []*types.User
	for _, email := range emails {
		for _, u := range f.users {
			if u.Email == email {
				cp := *u
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}

func (f *fakeUserRepo) EmailExists(ctx context.Context, tx *gorm.DB, email string) (bool, error) {
	for _, u := range f.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUserRepo) ListAll(ctx context.Context, tx *gorm.DB) ([]*types.User, error) {
	var out []*types.User
	for _, u := range f.users {
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

type fakeUserTokenRepo struct {
	tokens map[uuid.UUID]*types.UserToken
}

func newFakeUserTokenRepo() *fakeUserTokenRepo {
	return &fakeUserTokenRepo{tokens: map[uuid.UUID]*types.UserToken{}}
}

func (f *fakeUserTokenRepo) Create(ctx context.Context, tx *gorm.DB, userTokens []*types.UserToken) ([]*types.UserToken, error) {
	for _, t := range userTokens {
		cp := *t
		f.tokens[t.ID] = &cp
	}
	return userTokens, nil
}

func (f *fakeUserTokenRepo) GetByAccessTokens(ctx context.Context, tx *gorm.DB, accessTokens []string) ([]*types.UserToken, error) {
	var out []*types.UserToken
	for _, s := range accessTokens {
		for _, t := range f.tokens {
			if t.AccessToken == s {
				cp := *t
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}

func (f *fakeUserTokenRepo) GetByRefreshTokens(ctx context.Context, tx *gorm.DB, refreshTokens []string) ([]*types.UserToken, error) {
	var out []*types.UserToken
	for _, s := range refreshTokens {
		for _, t := range f.tokens {
			if t.RefreshToken == s {
				cp := *t
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}

func (f *fakeUserTokenRepo) GetByUserIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.UserToken, error) {
	var out []*types.UserToken
	for _, id := range userIDs {
		for _, t := range f.tokens {
			if t.UserID == id {
				cp := *t
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}

func (f *fakeUserTokenRepo) FullDeleteByIDs(ctx context.Context, tx *gorm.DB, tokenIDs []uuid.UUID) error {
	for _, id := range tokenIDs {
		delete(f.tokens, id)
	}
	return nil
}

func (f *fakeUserTokenRepo) FullDeleteByUserIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) error {
	for _, uid := range userIDs {
		for id, t := range f.tokens {
			if t.UserID == uid {
				delete(f.tokens, id)
			}
		}
	}
	return nil
}

func newAuthEnv(t *testing.T) (AuthService, *fakeUserRepo, *fakeUserTokenRepo) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	users := newFakeUserRepo()
	tokens := newFakeUserTokenRepo()
	svc := NewAuthService(db, log, users, tokens, "test-secret", 15*time.Minute, 24*time.Hour)
	return svc, users, tokens
}

func registerTestUser(t *testing.T, svc AuthService, email string) {
	t.Helper()
	err := svc.RegisterUser(context.Background(), &types.User{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     email,
		Password:  "correct-horse",
		Role:      types.RoleUser,
	})
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
}

func TestRegisterAndLogin(t *testing.T) {
	svc, users, _ := newAuthEnv(t)
	registerTestUser(t, svc, "ada@example.com")

	for _, u := range users.users {
		if u.Password == "correct-horse" {
			t.Fatalf("password stored in plaintext")
		}
	}

	access, refresh, err := svc.LoginUser(context.Background(), "Ada@Example.com ", "correct-horse")
	if err != nil {
		t.Fatalf("LoginUser: %v", err)
	}
	if access == "" || refresh == "" {
		t.Fatalf("empty token pair")
	}

	ctx, err := svc.SetContextFromToken(context.Background(), access)
	if err != nil {
		t.Fatalf("SetContextFromToken: %v", err)
	}
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		t.Fatalf("request data not populated")
	}
	if rd.Role != types.RoleUser {
		t.Fatalf("role = %q, want %q", rd.Role, types.RoleUser)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _, _ := newAuthEnv(t)
	registerTestUser(t, svc, "ada@example.com")

	if _, _, err := svc.LoginUser(context.Background(), "ada@example.com", "wrong"); apierr.StatusOf(err) != 401 {
		t.Fatalf("wrong password should be 401, got %v", err)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _, _ := newAuthEnv(t)
	registerTestUser(t, svc, "ada@example.com")

	err := svc.RegisterUser(context.Background(), &types.User{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@example.com",
		Password:  "another-pass",
	})
	if apierr.StatusOf(err) != 400 {
		t.Fatalf("duplicate email should be 400, got %v", err)
	}
}

func TestRefreshRotatesTokens(t *testing.T) {
	svc, _, tokens := newAuthEnv(t)
	registerTestUser(t, svc, "ada@example.com")

	access, refresh, err := svc.LoginUser(context.Background(), "ada@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("LoginUser: %v", err)
	}

	ctx := requestdata.WithRequestData(context.Background(), &requestdata.RequestData{
		TokenString:  access,
		RefreshToken: refresh,
	})
	newAccess, newRefresh, err := svc.RefreshUser(ctx)
	if err != nil {
		t.Fatalf("RefreshUser: %v", err)
	}
	if newRefresh == refresh {
		t.Fatalf("refresh token not rotated")
	}
	if newAccess == "" {
		t.Fatalf("empty rotated access token")
	}

	// Old refresh token must be gone.
	old, _ := tokens.GetByRefreshTokens(context.Background(), nil, []string{refresh})
	if len(old) != 0 {
		t.Fatalf("old refresh token still present")
	}
}

func TestLogoutDeletesToken(t *testing.T) {
	svc, _, tokens := newAuthEnv(t)
	registerTestUser(t, svc, "ada@example.com")

	access, _, err := svc.LoginUser(context.Background(), "ada@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("LoginUser: %v", err)
	}
	ctx := requestdata.WithRequestData(context.Background(), &requestdata.RequestData{TokenString: access})
	if err := svc.LogoutUser(ctx); err != nil {
		t.Fatalf("LogoutUser: %v", err)
	}
	left, _ := tokens.GetByAccessTokens(context.Background(), nil, []string{access})
	if len(left) != 0 {
		t.Fatalf("access token still present after logout")
	}
}

func TestSessionTokenRejectsTampering(t *testing.T) {
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	mint := NewSessionTokenService(log, "secret-a", time.Hour)
	verify := NewSessionTokenService(log, "secret-b", time.Hour)

	userID, lessonID := uuid.New(), uuid.New()
	tok, err := mint.Mint(userID, lessonID)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if err := mint.Verify(tok, userID, lessonID); err != nil {
		t.Fatalf("Verify with same key: %v", err)
	}
	if err := verify.Verify(tok, userID, lessonID); err == nil {
		t.Fatalf("token signed with another key must fail")
	}
	if err := mint.Verify(tok, userID, uuid.New()); err == nil {
		t.Fatalf("token for another lesson must fail")
	}
}
