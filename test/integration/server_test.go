package integration

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/linkroom/linkroom/internal/server"
	"github.com/linkroom/linkroom/test/testhelpers"
)

func TestHealthEndpoint(t *testing.T) {
	app := testhelpers.StartApp(t, nil)

	resp, err := http.Get(app.Server.URL + "/health")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	testhelpers.AssertStatusCode(t, resp, http.StatusOK)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	if !strings.Contains(string(body), "LinkRoom server is running!") {
		t.Errorf("Unexpected health body: %q", body)
	}
}

// TestGroupLinkUsesRequestHost verifies that the shareable link embeds the
// host the client used to reach the API.
func TestGroupLinkUsesRequestHost(t *testing.T) {
	app := testhelpers.StartApp(t, nil)

	group := testhelpers.CreateGroup(t, app, "Team")

	expected := app.Server.URL + "/group/" + group.ID
	if group.Link != expected {
		t.Errorf("Expected link %q, got %q", expected, group.Link)
	}
}

func TestCreateGroupValidationOverHTTP(t *testing.T) {
	app := testhelpers.StartApp(t, nil)

	resp := testhelpers.PostJSON(t, app.Server.URL, "/api/groups", map[string]string{})

	testhelpers.AssertStatusCode(t, resp, http.StatusBadRequest)
	testhelpers.AssertErrorBody(t, resp, "Название группы обязательно")
}

func TestJoinUnknownGroupOverHTTP(t *testing.T) {
	app := testhelpers.StartApp(t, nil)

	resp := testhelpers.PostJSON(t, app.Server.URL, "/api/groups/doesnotexist/join", nil)

	testhelpers.AssertStatusCode(t, resp, http.StatusNotFound)
	testhelpers.AssertErrorBody(t, resp, "Группа не найдена")
}

// TestLoginAndCreateGroupFlow exercises the boundary the front-end uses:
// login for a token, then create a group.
func TestLoginAndCreateGroupFlow(t *testing.T) {
	app := testhelpers.StartApp(t, nil)

	resp := testhelpers.PostJSON(t, app.Server.URL, "/api/auth/login", map[string]any{
		"username": "alice",
		"password": "secret123",
	})
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)

	var login struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
	}
	testhelpers.DecodeJSON(t, resp, &login)
	if !login.Success || login.Token == "" {
		t.Fatalf("Unexpected login response: %+v", login)
	}
	if _, ok := app.Sessions.Get(login.Token); !ok {
		t.Error("Session token not found in store")
	}

	group := testhelpers.CreateGroup(t, app, "Team")
	if group.Members != 0 {
		t.Errorf("Expected a fresh group with 0 members, got %d", group.Members)
	}
	if _, err := time.Parse("02.01.2006, 15:04:05", group.Created); err != nil {
		t.Errorf("Created timestamp %q has unexpected format: %v", group.Created, err)
	}
}

// TestStaticFallbackOverHTTP verifies the single-page-app serving behavior on
// a running server.
func TestStaticFallbackOverHTTP(t *testing.T) {
	staticDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(staticDir, "index.html"), []byte("<html>app</html>"), 0o644); err != nil {
		t.Fatalf("Failed to write index.html: %v", err)
	}

	app := testhelpers.StartApp(t, func(cfg *server.Config) {
		cfg.StaticDir = staticDir
	})

	for _, path := range []string{"/", "/group/12345"} {
		resp, err := http.Get(app.Server.URL + path)
		if err != nil {
			t.Fatalf("Failed to make request: %v", err)
		}

		testhelpers.AssertStatusCode(t, resp, http.StatusOK)
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			t.Fatalf("Failed to read body: %v", err)
		}
		if string(body) != "<html>app</html>" {
			t.Errorf("Path %s: unexpected body %q", path, body)
		}
	}
}
