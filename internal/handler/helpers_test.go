package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"roomchat/internal/app/chat"
	"roomchat/internal/app/storage"
	"roomchat/internal/app/store"
	"roomchat/internal/app/store/memstore"
	"roomchat/internal/app/user"
	"roomchat/internal/configs"
	"roomchat/internal/pkg/auth/jwt"
	"roomchat/internal/pkg/limiter"
	"roomchat/internal/pkg/logx"
	"roomchat/internal/pkg/pow"
	"roomchat/internal/pkg/randx"
)

const testSecret = "handler-test-secret"

func TestMain(m *testing.M) {
	logx.UseWriter(os.Stderr, zerolog.Disabled)
	os.Exit(m.Run())
}

// fakeStorage records the calls made to the object store.
type fakeStorage struct {
	mu       sync.Mutex
	uploaded map[string][]byte
	fail     bool
}

var _ storage.StorageService = (*fakeStorage)(nil)

func newFakeStorage() *fakeStorage {
	return &fakeStorage{uploaded: make(map[string][]byte)}
}

func (f *fakeStorage) err() error {
	if f.fail {
		return io.ErrUnexpectedEOF
	}
	return nil
}

func (f *fakeStorage) PresignUpload(ctx context.Context, key, mimeType string, fileSize int64, d time.Duration) (string, error) {
	return "https://files.example/upload/" + key, f.err()
}

func (f *fakeStorage) PresignDownload(ctx context.Context, key string, d time.Duration) (string, error) {
	return "https://files.example/download/" + key, f.err()
}

func (f *fakeStorage) Upload(ctx context.Context, key string, body io.Reader, mimeType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploaded[key] = data
	return f.err()
}

func (f *fakeStorage) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.uploaded[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Size: int64(len(data))}, nil
}

type testServer struct {
	t       *testing.T
	deps    *AppDeps
	store   *memstore.Store
	files   *fakeStorage
	handler http.Handler
}

func unlimited() *Limiters {
	return &Limiters{
		Create:  limiter.NewKeyedLimiter(rate.Inf, 1),
		Connect: limiter.NewKeyedLimiter(rate.Inf, 1),
	}
}

func newTestServer(t *testing.T, limiters *Limiters) *testServer {
	t.Helper()

	st := memstore.New()
	files := newFakeStorage()
	cfg := &configs.AppConfig{
		Environment:   configs.EnvDevelopment,
		JWTSecret:     testSecret,
		PowDifficulty: 1,
	}

	deps := &AppDeps{
		Config:       cfg,
		Store:        st,
		Coordinator: chat.NewCoordinator(st, chat.NewRegistry(), chat.NewHub(),
			limiter.NewCommandThrottle(limiter.DefaultCommandCooldown), chat.WithObjectStore(files)),
		Verifier:     jwt.NewVerifier(testSecret, st),
		PoW:          pow.NewPoWManager(cfg.PowDifficulty),
		AuthThrottle: limiter.NewMemoryAuthThrottle(limiter.DefaultAuthMaxAttempts, limiter.DefaultAuthWindow),
		Storage:      files,
	}

	return &testServer{
		t:       t,
		deps:    deps,
		store:   st,
		files:   files,
		handler: Router(deps, limiters),
	}
}

// newUser stores an account and returns it with a valid access token.
func (s *testServer) newUser(name string) (user.Identity, string) {
	s.t.Helper()

	account := &user.Account{
		Identity: user.Identity{
			ID:     randx.ID(),
			Name:   name,
			Email:  name + "@example.com",
			Role:   user.RoleMember,
			Status: user.StatusOffline,
		},
		PasswordHash: "unused",
	}
	require.NoError(s.t, s.store.CreateUser(context.Background(), account))

	token, _, err := issueToken(s.deps, &account.Identity)
	require.NoError(s.t, err)
	return account.Identity, token
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (s *testServer) do(method, path, token string, body any, headers ...string) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}

	r := httptest.NewRequest(method, path, reader)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		r.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, r)

	var env envelope
	if w.Header().Get("Content-Type") == "application/json" {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

// createRoom creates a room through the API and returns it.
func (s *testServer) createRoom(token string, in chat.CreateRoomInput) store.Room {
	s.t.Helper()

	w, env := s.do(http.MethodPost, "/api/rooms", token, in)
	require.Equal(s.t, http.StatusCreated, w.Code, env.Message)
	return decodeData[struct {
		Room store.Room `json:"room"`
	}](s.t, env).Room
}
