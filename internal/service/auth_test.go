package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vietanh2810/eventfinder-api/internal/domain"
	"github.com/vietanh2810/eventfinder-api/internal/repository"
)

type fakeUserRepo struct {
	users map[string]domain.User
}

func (f *fakeUserRepo) Create(_ context.Context, u domain.User) (domain.User, error) {
	if _, ok := f.users[u.Email]; ok {
		return domain.User{}, repository.ErrUserEmailExists
	}
	u.ID = uint(len(f.users) + 1)
	f.users[u.Email] = u
	return u, nil
}

func (f *fakeUserRepo) FindByEmail(_ context.Context, email string) (domain.User, error) {
	u, ok := f.users[email]
	if !ok {
		return domain.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUserRepo) FindByID(_ context.Context, id uint) (domain.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return domain.User{}, repository.ErrUserNotFound
}

func TestAuthService_SignupAndLogin(t *testing.T) {
	repo := &fakeUserRepo{users: map[string]domain.User{}}
	svc := NewAuthService(repo)
	ctx := context.Background()

	user, err := svc.Signup(ctx, domain.User{Email: "jane@example.com", Username: "jane", Password: "secret123"})
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", user.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("secret123")))

	_, err = svc.Signup(ctx, domain.User{Email: "jane@example.com", Username: "jane2", Password: "secret123"})
	assert.ErrorIs(t, err, ErrUserEmailExists)

	loggedIn, err := svc.Login(ctx, "jane@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, loggedIn.ID)

	_, err = svc.Login(ctx, "jane@example.com", "wrong")
	assert.ErrorIs(t, err, ErrWrongPassword)

	_, err = svc.Login(ctx, "nobody@example.com", "secret123")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserService_GetUser(t *testing.T) {
	repo := &fakeUserRepo{users: map[string]domain.User{"a@b.c": {ID: 1, Username: "a"}}}
	svc := NewUserService(repo)

	user, err := svc.GetUser(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "a", user.Username)

	_, err = svc.GetUser(context.Background(), 2)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
