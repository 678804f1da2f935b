package marzban

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"marzban-vpn-bot/internal/config"
	errs "marzban-vpn-bot/internal/errors"
)

// panelServer fakes the panel API: a login endpoint issuing numbered tokens
// and a pluggable user handler.
type panelServer struct {
	mu          sync.Mutex
	logins      int
	userCalls   int
	userHandler func(token string, w http.ResponseWriter, r *http.Request)
	server      *httptest.Server
}

func newPanelServer(t *testing.T, userHandler func(token string, w http.ResponseWriter, r *http.Request)) *panelServer {
	t.Helper()

	ps := &panelServer{userHandler: userHandler}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/admin/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.FormValue("username") != "admin" || r.FormValue("password") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		ps.mu.Lock()
		ps.logins++
		token := fmt.Sprintf("token-%d", ps.logins)
		ps.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"access_token": token})
	})
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		ps.mu.Lock()
		ps.userCalls++
		ps.mu.Unlock()
		token := r.Header.Get("Authorization")
		if len(token) > 7 {
			token = token[7:] // strip "Bearer "
		}
		ps.userHandler(token, w, r)
	})
	ps.server = httptest.NewServer(mux)
	t.Cleanup(ps.server.Close)
	return ps
}

func (ps *panelServer) loginCount() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.logins
}

func (ps *panelServer) userCallCount() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.userCalls
}

func newTestClient(url string) *Client {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return NewClient(config.PanelConfig{
		APIURL:       url,
		User:         "admin",
		Password:     "secret",
		SubURLPrefix: "https://vpn.example",
	}, logger)
}

func writeUser(w http.ResponseWriter, user User) {
	json.NewEncoder(w).Encode(user)
}

func TestGetUserLogsInLazily(t *testing.T) {
	ps := newPanelServer(t, func(token string, w http.ResponseWriter, r *http.Request) {
		if token != "token-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeUser(w, User{Username: "tg_100", Status: StatusActive})
	})
	client := newTestClient(ps.server.URL)

	user, err := client.GetUser(context.Background(), "tg_100")
	if err != nil {
		t.Fatalf("get user failed: %v", err)
	}
	if user.Username != "tg_100" || user.Status != StatusActive {
		t.Errorf("unexpected user: %+v", user)
	}
	if ps.loginCount() != 1 {
		t.Errorf("expected 1 login, got %d", ps.loginCount())
	}

	// Second call reuses the cached token
	if _, err := client.GetUser(context.Background(), "tg_100"); err != nil {
		t.Fatalf("second get failed: %v", err)
	}
	if ps.loginCount() != 1 {
		t.Errorf("cached token not reused, %d logins", ps.loginCount())
	}
}

func TestExpiredTokenRetriedOnce(t *testing.T) {
	// The first issued token is stale: the panel rejects it, forcing one
	// re-login and one retry that succeeds.
	ps := newPanelServer(t, func(token string, w http.ResponseWriter, r *http.Request) {
		if token == "token-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeUser(w, User{Username: "tg_100"})
	})
	client := newTestClient(ps.server.URL)

	if _, err := client.GetUser(context.Background(), "tg_100"); err != nil {
		t.Fatalf("get user failed after re-login: %v", err)
	}
	if ps.loginCount() != 2 {
		t.Errorf("expected re-login, got %d logins", ps.loginCount())
	}
	if ps.userCallCount() != 2 {
		t.Errorf("expected exactly one retry, got %d calls", ps.userCallCount())
	}
}

func TestPersistentUnauthorizedIsTerminal(t *testing.T) {
	ps := newPanelServer(t, func(token string, w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	client := newTestClient(ps.server.URL)

	_, err := client.GetUser(context.Background(), "tg_100")
	if !errs.IsAuth(err) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if ps.userCallCount() != 2 {
		t.Errorf("a second 401 must not trigger more retries, got %d calls", ps.userCallCount())
	}
}

func TestTransportFailure(t *testing.T) {
	ps := newPanelServer(t, func(token string, w http.ResponseWriter, r *http.Request) {})
	url := ps.server.URL
	ps.server.Close()

	client := newTestClient(url)

	status, _ := client.Request(context.Background(), http.MethodGet, "/api/user/tg_100", nil)
	if status != 0 {
		t.Errorf("transport failure must report status 0, got %d", status)
	}

	if _, err := client.GetUser(context.Background(), "tg_100"); !errs.IsTransport(err) {
		t.Errorf("expected TransportError, got %v", err)
	}
}

func TestUserExists(t *testing.T) {
	ps := newPanelServer(t, func(token string, w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/user/tg_100" {
			writeUser(w, User{Username: "tg_100"})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	client := newTestClient(ps.server.URL)

	exists, err := client.UserExists(context.Background(), "tg_100")
	if err != nil || !exists {
		t.Errorf("expected existing user, got exists=%v err=%v", exists, err)
	}

	exists, err = client.UserExists(context.Background(), "ghost")
	if err != nil {
		t.Errorf("a 404 is not an error: %v", err)
	}
	if exists {
		t.Error("ghost user must not exist")
	}
}

func TestCreateUserValidationFailure(t *testing.T) {
	ps := newPanelServer(t, func(token string, w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		io.WriteString(w, `{"detail":"proxies required"}`)
	})
	client := newTestClient(ps.server.URL)

	_, err := client.CreateUser(context.Background(), User{Username: "tg_100"})
	if !errs.IsValidation(err) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestUsernamePercentEncoded(t *testing.T) {
	var gotPath string
	ps := newPanelServer(t, func(token string, w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		writeUser(w, User{Username: "odd name"})
	})
	client := newTestClient(ps.server.URL)

	if _, err := client.GetUser(context.Background(), "odd name"); err != nil {
		t.Fatalf("get user failed: %v", err)
	}
	if gotPath != "/api/user/odd%20name" {
		t.Errorf("username not percent-encoded, path %q", gotPath)
	}
}

func TestSearchUsers(t *testing.T) {
	ps := newPanelServer(t, func(token string, w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("username") != "tg_1" || r.URL.Query().Get("limit") != "20" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(UsersPage{
			Users: []User{{Username: "tg_100"}, {Username: "tg_101"}},
			Total: 2,
		})
	})
	client := newTestClient(ps.server.URL)

	page, err := client.SearchUsers(context.Background(), "tg_1", 20, 0)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if page.Total != 2 || len(page.Users) != 2 {
		t.Errorf("unexpected page: %+v", page)
	}
}

func TestSubscriptionURL(t *testing.T) {
	client := newTestClient("http://panel")

	user := &User{SubscriptionURL: "/sub/abcdef"}
	if got := client.SubscriptionURL(user); got != "https://vpn.example/sub/abcdef" {
		t.Errorf("unexpected subscription URL %q", got)
	}
	if got := client.SubscriptionURL(&User{}); got != "" {
		t.Errorf("empty panel link must stay empty, got %q", got)
	}
}
