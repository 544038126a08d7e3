package identity_test

import (
	"context"
	"io"
	"mime/multipart"
	"testing"

	"github.com/goliatone/go-router"
	identity "github.com/riegodigital/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockContext mocks router.Context
type MockContext struct {
	mock.Mock
	NextCalled bool
}

func (m *MockContext) Next() error {
	m.NextCalled = true
	return nil
}

func (m *MockContext) Context() context.Context {
	args := m.Called()
	c, ok := args.Get(0).(context.Context)
	if !ok {
		panic("arg needs to be context.Context")
	}
	return c
}

func (m *MockContext) SetContext(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockContext) Path() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Method() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Body() []byte {
	args := m.Called()
	return args.Get(0).([]byte)
}

func (m *MockContext) Status(code int) router.Context {
	m.Called(code)
	return m
}

func (m *MockContext) SendString(s string) error {
	args := m.Called(s)
	return args.Error(0)
}

func (m *MockContext) Send(b []byte) error {
	args := m.Called(b)
	return args.Error(0)
}

func (m *MockContext) JSON(code int, val any) error {
	args := m.Called(code, val)
	return args.Error(0)
}

func (m *MockContext) NoContent(code int) error {
	args := m.Called(code)
	return args.Error(0)
}

func (m *MockContext) Render(name string, bind any, layout ...string) error {
	if len(layout) > 0 {
		args := m.Called(name, bind, layout[0])
		return args.Error(0)
	}
	args := m.Called(name, bind)
	return args.Error(0)
}

func (m *MockContext) Redirect(path string, status ...int) error {
	if len(status) > 0 {
		args := m.Called(path, status)
		return args.Error(0)
	}
	args := m.Called(path)
	return args.Error(0)
}

func (m *MockContext) RedirectToRoute(name string, data router.ViewContext, status ...int) error {
	if len(status) > 0 {
		args := m.Called(name, data, status[0])
		return args.Error(0)
	}
	args := m.Called(name, data)
	return args.Error(0)
}

func (m *MockContext) RedirectBack(fallback string, status ...int) error {
	if len(status) > 0 {
		args := m.Called(fallback, status)
		return args.Error(0)
	}
	args := m.Called(fallback)
	return args.Error(0)
}

func (m *MockContext) SetHeader(key, val string) router.Context {
	m.Called(key, val)
	return m
}

func (m *MockContext) Header(key string) string {
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) Get(key string, defaultValue any) any {
	args := m.Called(key, defaultValue)
	return args.Get(0)
}

func (m *MockContext) GetBool(key string, defaultValue bool) bool {
	args := m.Called(key, defaultValue)
	return args.Bool(0)
}

func (m *MockContext) GetInt(key string, def int) int {
	args := m.Called(key, def)
	return args.Int(0)
}

func (m *MockContext) Set(key string, val any) {
	m.Called(key, val)
}

func (m *MockContext) Bind(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindJSON(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindXML(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindQuery(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) CookieParser(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) Cookie(cookie *router.Cookie) {
	m.Called(cookie)
}

func (m *MockContext) Cookies(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) Param(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) ParamsInt(key string, defaultValue int) int {
	args := m.Called(key, defaultValue)
	return args.Int(0)
}

func (m *MockContext) Query(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) QueryValues(key string) []string {
	args := m.Called(key)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]string)
}

func (m *MockContext) QueryInt(key string, defaultValue int) int {
	args := m.Called(key, defaultValue)
	return args.Int(0)
}

func (m *MockContext) Queries() map[string]string {
	args := m.Called()
	return args.Get(0).(map[string]string)
}

func (m *MockContext) GetString(key string, defaultValue string) string {
	args := m.Called(key, defaultValue)
	return args.String(0)
}

func (m *MockContext) Locals(key any, value ...any) any {
	if len(value) > 0 {
		m.Called(key, value[0])
		return nil
	}
	args := m.Called(key)
	return args.Get(0)
}

func (m *MockContext) OriginalURL() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) OnNext(callback func() error) {
	m.Called(callback)
}

func (m *MockContext) Referer() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) SendStatus(code int) error {
	args := m.Called(code)
	return args.Error(0)
}

func (m *MockContext) SendStream(stream io.Reader) error {
	args := m.Called(stream)
	return args.Error(0)
}

func (m *MockContext) LocalsMerge(key any, value map[string]any) map[string]any {
	args := m.Called(key, value)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(map[string]any)
}

func (m *MockContext) FormFile(key string) (*multipart.FileHeader, error) {
	args := m.Called(key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*multipart.FileHeader), args.Error(1)
}

func (m *MockContext) FormValue(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) IP() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) RouteName() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) RouteParams() map[string]string {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(map[string]string)
}

var _ router.Context = (*MockContext)(nil)

func TestTokenFromRequest(t *testing.T) {
	httpAuth := newTestRouteAuthenticator(t, nil)

	tests := []struct {
		name      string
		header    string
		expected  string
		expectErr bool
	}{
		{
			name:     "well formed bearer header",
			header:   "Bearer abc.def.ghi",
			expected: "abc.def.ghi",
		},
		{
			name:     "scheme match is case insensitive",
			header:   "bearer abc.def.ghi",
			expected: "abc.def.ghi",
		},
		{
			name:      "missing header",
			header:    "",
			expectErr: true,
		},
		{
			name:      "wrong scheme",
			header:    "Basic dXNlcjpwYXNz",
			expectErr: true,
		},
		{
			name:      "scheme without token",
			header:    "Bearer",
			expectErr: true,
		},
		{
			name:      "no separator between scheme and token",
			header:    "Bearerabc.def.ghi",
			expectErr: true,
		},
		{
			name:      "scheme followed by only whitespace",
			header:    "Bearer   ",
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockCtx := new(MockContext)
			mockCtx.On("Header", router.HeaderAuthorization).Return(tt.header)

			token, err := httpAuth.TokenFromRequest(mockCtx)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, token)
		})
	}
}

func TestProtectedRoute(t *testing.T) {
	db, repo := setupIdentityDB(t)

	seedActiveAccount(t, repo, "farmer@example.com", "super-secret-pw")

	provider := identity.NewAccountProvider(repo.Accounts())
	auther := identity.NewAuthenticator(provider, identity.NewRevocationStore(db), newMockConfig())
	httpAuth := newTestRouteAuthenticator(t, auther)

	token, err := auther.Login(context.Background(), "farmer@example.com", "super-secret-pw")
	require.NoError(t, err)

	protected := httpAuth.ProtectedRoute()

	next := func(c router.Context) error { return c.Next() }

	t.Run("valid token reaches the handler", func(t *testing.T) {
		mockCtx := new(MockContext)
		mockCtx.On("Header", router.HeaderAuthorization).Return("Bearer " + token)
		mockCtx.On("Context").Return(context.Background())
		mockCtx.On("SetContext", mock.Anything).Return()
		mockCtx.On("Locals", "session", mock.Anything).Return(nil)

		err := protected(next)(mockCtx)
		require.NoError(t, err)
		assert.True(t, mockCtx.NextCalled)
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		mockCtx := new(MockContext)
		mockCtx.On("Header", router.HeaderAuthorization).Return("Bearer not-a-jwt")
		mockCtx.On("Context").Return(context.Background())
		mockCtx.On("JSON", mock.Anything, mock.Anything).Return(nil)

		err := protected(next)(mockCtx)
		require.NoError(t, err)
		assert.False(t, mockCtx.NextCalled)
	})

	t.Run("revoked token is rejected", func(t *testing.T) {
		require.NoError(t, auther.Logout(context.Background(), token))

		mockCtx := new(MockContext)
		mockCtx.On("Header", router.HeaderAuthorization).Return("Bearer " + token)
		mockCtx.On("Context").Return(context.Background())
		mockCtx.On("JSON", mock.Anything, mock.Anything).Return(nil)

		err := protected(next)(mockCtx)
		require.NoError(t, err)
		assert.False(t, mockCtx.NextCalled)
	})

	t.Run("missing header is rejected", func(t *testing.T) {
		mockCtx := new(MockContext)
		mockCtx.On("Header", router.HeaderAuthorization).Return("")
		mockCtx.On("JSON", mock.Anything, mock.Anything).Return(nil)

		err := protected(next)(mockCtx)
		require.NoError(t, err)
		assert.False(t, mockCtx.NextCalled)
	})
}

func newTestRouteAuthenticator(t *testing.T, auther identity.Authenticator) *identity.RouteAuthenticator {
	t.Helper()

	httpAuth, err := identity.NewHTTPAuthenticator(auther, newMockConfig())
	require.NoError(t, err)

	return httpAuth
}
