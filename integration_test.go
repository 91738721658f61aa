package users_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"testing"
	"time"

	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	users "github.com/goliatone/go-users"
)

// MockBlobStore implements users.BlobStore
type MockBlobStore struct {
	mock.Mock
}

func (m *MockBlobStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	_, _ = io.Copy(io.Discard, r)
	args := m.Called(ctx, key, size, contentType)
	return args.String(0), args.Error(1)
}

func (m *MockBlobStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func accountsWith(f tokenFixture, opts ...users.AccountsOption) *users.Accounts {
	opts = append([]users.AccountsOption{users.WithAccountsClock(f.clock.Now)}, opts...)
	return users.NewAccounts(f.repo, f.issuer, opts...)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func ptr[T any](v T) *T { return &v }

func TestAccounts_Register(t *testing.T) {
	f := newTokenFixture(t)
	ctx := context.Background()
	accounts := accountsWith(f)

	user, err := accounts.Register(ctx, f.site, users.RegisterUserMessage{
		Email:    " Alice@Example.com",
		Password: "pw123456",
		Profile:  &users.ProfileInput{Name: ptr("Alice"), Phone: ptr("010-1234-5678")},
	})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.True(t, user.IsActive)
	assert.False(t, user.IsStaff)
	assert.Equal(t, f.clock.Now(), user.DateJoined.UTC())
	require.NotNil(t, user.Profile)
	assert.Equal(t, "Alice", *user.Profile.Name)
	assert.Equal(t, "+821012345678", *user.Profile.Phone)

	_, err = accounts.Register(ctx, f.site, users.RegisterUserMessage{Email: "alice@example.com", Password: "pw123456"})
	assert.True(t, users.IsTextCode(err, users.TextCodeDuplicateEmail))

	other, err := f.repo.Sites().GetOrCreate(ctx, "other.example.com", "other")
	require.NoError(t, err)
	_, err = accounts.Register(ctx, other, users.RegisterUserMessage{Email: "alice@example.com", Password: "pw123456"})
	assert.NoError(t, err, "the same email may exist on another site")
}

func TestAccounts_RegisterDeterministicIDs(t *testing.T) {
	f := newTokenFixture(t)
	ctx := context.Background()
	accounts := accountsWith(f, users.WithDeterministicIDs(true))

	first, err := accounts.Register(ctx, f.site, users.RegisterUserMessage{Email: "alice@example.com", Password: "pw123456"})
	require.NoError(t, err)
	require.NoError(t, accounts.Delete(ctx, first, first))

	again, err := accounts.Register(ctx, f.site, users.RegisterUserMessage{Email: "ALICE@example.com", Password: "pw123456"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	other, err := f.repo.Sites().GetOrCreate(ctx, "other.example.com", "other")
	require.NoError(t, err)
	elsewhere, err := accounts.Register(ctx, other, users.RegisterUserMessage{Email: "alice@example.com", Password: "pw123456"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, elsewhere.ID)
}

func TestAccounts_RegisterDeterministicIDFailure(t *testing.T) {
	f := newTokenFixture(t)
	ctx := context.Background()
	// HMAC without a key cannot derive an id
	accounts := accountsWith(f, users.WithDeterministicIDs(true, hashid.WithHashAlgorithm(hashid.HMAC_SHA256)))

	_, err := accounts.Register(ctx, f.site, users.RegisterUserMessage{Email: "alice@example.com", Password: "pw123456"})
	require.Error(t, err)
	assert.Equal(t, 500, users.StatusFor(users.ToRichError(err)))

	existing, err := f.repo.Users().FindByEmail(ctx, f.site.ID, "alice@example.com", true)
	require.NoError(t, err)
	assert.Empty(t, existing, "no user is stored with a random id")
}

func TestAccounts_RegisterValidation(t *testing.T) {
	f := newTokenFixture(t)
	ctx := context.Background()
	accounts := accountsWith(f)

	tests := []struct {
		name  string
		msg   users.RegisterUserMessage
		field string
	}{
		{name: "missing email", msg: users.RegisterUserMessage{Password: "pw123456"}, field: "email"},
		{name: "bad email", msg: users.RegisterUserMessage{Email: "alice", Password: "pw123456"}, field: "email"},
		{name: "short password", msg: users.RegisterUserMessage{Email: "alice@example.com", Password: "pw1"}, field: "password"},
		{name: "numeric password", msg: users.RegisterUserMessage{Email: "alice@example.com", Password: "12345678"}, field: "password"},
		{name: "common password", msg: users.RegisterUserMessage{Email: "alice@example.com", Password: "password"}, field: "password"},
		{name: "bad phone", msg: users.RegisterUserMessage{Email: "alice@example.com", Password: "pw123456", Profile: &users.ProfileInput{Phone: ptr("12")}}, field: "phone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := accounts.Register(ctx, f.site, tt.msg)
			require.Error(t, err)
			richErr := users.ToRichError(err)
			assert.Equal(t, users.TextCodeValidation, richErr.TextCode)
			assert.Equal(t, 400, users.StatusFor(richErr))
		})
	}
}

func TestAccounts_ResolveAndUpdate(t *testing.T) {
	f := newTokenFixture(t)
	ctx := context.Background()
	accounts := accountsWith(f)

	alice, err := accounts.Register(ctx, f.site, users.RegisterUserMessage{Email: "alice@example.com", Password: "pw123456"})
	require.NoError(t, err)
	bob, err := accounts.Register(ctx, f.site, users.RegisterUserMessage{Email: "bob@example.com", Password: "pw123456"})
	require.NoError(t, err)
	admin, err := accounts.Register(ctx, f.site, users.RegisterUserMessage{Email: "admin@example.com", Password: "pw123456", IsStaff: true})
	require.NoError(t, err)

	self, err := accounts.Resolve(ctx, alice, "")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, self.ID)

	_, err = accounts.Resolve(ctx, alice, bob.ID.String())
	assert.ErrorIs(t, err, users.ErrPermissionDenied)

	_, err = accounts.Resolve(ctx, alice, "not-a-uuid")
	assert.True(t, users.IsTextCode(err, users.TextCodeValidation))

	target, err := accounts.Resolve(ctx, admin, bob.ID.String())
	require.NoError(t, err)
	assert.Equal(t, bob.ID, target.ID)

	_, err = accounts.Update(ctx, alice, alice, users.UpdateAccountRequest{Email: ptr("bob@example.com")})
	assert.ErrorIs(t, err, users.ErrDuplicateEmail)

	f.clock.Advance(time.Hour)
	updated, err := accounts.Update(ctx, alice, alice, users.UpdateAccountRequest{
		Email:    ptr("Alice2@Example.com"),
		Password: ptr("another-pass"),
		Profile:  &users.ProfileInput{Nickname: ptr("al")},
	})
	require.NoError(t, err)
	assert.Equal(t, "alice2@example.com", updated.Email)
	require.NotNil(t, updated.LastPasswordChange)
	assert.Equal(t, f.clock.Now(), updated.LastPasswordChange.UTC())
	assert.Equal(t, "al", *updated.Profile.Nickname)

	_, err = accounts.Update(ctx, alice, alice, users.UpdateAccountRequest{Password: ptr("alice2example")})
	assert.True(t, users.IsTextCode(err, users.TextCodeValidation), "password too similar to the email")
}

func TestAccounts_Delete(t *testing.T) {
	f := newTokenFixture(t)
	ctx := context.Background()
	accounts := accountsWith(f)

	alice, err := accounts.Register(ctx, f.site, users.RegisterUserMessage{Email: "alice@example.com", Password: "pw123456"})
	require.NoError(t, err)
	token, _, err := f.issuer.GetOrCreate(ctx, alice)
	require.NoError(t, err)

	require.NoError(t, accounts.Delete(ctx, alice, alice))

	_, err = f.repo.Users().GetInSite(ctx, f.site.ID, alice.ID)
	assert.Error(t, err)

	_, _, err = f.issuer.Authenticate(ctx, token.Key)
	assert.Error(t, err)

	_, err = accounts.Register(ctx, f.site, users.RegisterUserMessage{Email: "alice@example.com", Password: "pw123456"})
	assert.NoError(t, err, "the email is free again")
}

func TestAccounts_RefreshToken(t *testing.T) {
	f := newTokenFixture(t)
	ctx := context.Background()
	accounts := accountsWith(f)

	alice, err := accounts.Register(ctx, f.site, users.RegisterUserMessage{Email: "alice@example.com", Password: "pw123456"})
	require.NoError(t, err)
	token, _, err := f.issuer.GetOrCreate(ctx, alice)
	require.NoError(t, err)

	other, err := f.repo.Sites().GetOrCreate(ctx, "other.example.com", "other")
	require.NoError(t, err)
	_, err = accounts.RefreshToken(ctx, other, token.Key)
	assert.ErrorIs(t, err, users.ErrTokenNotFound)

	rotated, err := accounts.RefreshToken(ctx, f.site, token.Key)
	require.NoError(t, err)
	assert.NotEqual(t, token.Key, rotated.Key)

	_, err = accounts.RefreshToken(ctx, f.site, token.Key)
	assert.ErrorIs(t, err, users.ErrTokenNotFound)

	_, err = accounts.RefreshToken(ctx, f.site, " ")
	assert.True(t, users.IsTextCode(err, users.TextCodeValidation))
}

func TestAccounts_UploadAvatar(t *testing.T) {
	f := newTokenFixture(t)
	ctx := context.Background()

	blobs := new(MockBlobStore)
	blobs.On("Put", mock.Anything, mock.MatchedBy(func(key string) bool {
		return len(key) > len("avatars/") && key[:len("avatars/")] == "avatars/"
	}), mock.Anything, "image/png").Return("https://cdn.example.com/a.png", nil).Once()

	accounts := accountsWith(f, users.WithBlobStore(blobs))
	alice, err := accounts.Register(ctx, f.site, users.RegisterUserMessage{Email: "alice@example.com", Password: "pw123456"})
	require.NoError(t, err)

	fresh, err := accounts.UploadAvatar(ctx, alice, "me.png", "", bytes.NewReader(pngBytes(t, 6, 4)))
	require.NoError(t, err)

	avatar := fresh.Profile.AvatarFor(users.DefaultAvatarBaseURL)
	assert.Equal(t, users.AvatarInfo{URL: "https://cdn.example.com/a.png", Width: 6, Height: 4}, avatar)
	blobs.AssertExpectations(t)

	_, err = accounts.UploadAvatar(ctx, alice, "notes.txt", "text/plain", bytes.NewReader([]byte("hello")))
	assert.True(t, users.IsTextCode(err, users.TextCodeValidation))
}

func TestAccounts_UploadAvatarStorageFailure(t *testing.T) {
	f := newTokenFixture(t)
	ctx := context.Background()

	blobs := new(MockBlobStore)
	blobs.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("bucket unavailable")).Once()

	accounts := accountsWith(f, users.WithBlobStore(blobs))
	alice, err := accounts.Register(ctx, f.site, users.RegisterUserMessage{Email: "alice@example.com", Password: "pw123456"})
	require.NoError(t, err)

	_, err = accounts.UploadAvatar(ctx, alice, "me.png", "image/png", bytes.NewReader(pngBytes(t, 2, 2)))
	require.Error(t, err)
	assert.Equal(t, 500, users.StatusFor(users.ToRichError(err)))
	blobs.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)

	unconfigured := accountsWith(f)
	_, err = unconfigured.UploadAvatar(ctx, alice, "me.png", "image/png", bytes.NewReader(pngBytes(t, 2, 2)))
	assert.True(t, users.IsTextCode(err, users.TextCodeInternal))
}
