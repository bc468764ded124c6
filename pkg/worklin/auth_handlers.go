package worklin

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/worklin/worklin/pkg/client"
	"github.com/worklin/worklin/pkg/models"
)

// Demo login. There are no accounts or passwords: signing in stores a
// display name and a user id in a signed cookie, and RequireLogin only checks
// that the cookie is present.

const (
	sessionName = "worklin-session"
	// DefaultUserName is used when a login gives no name.
	DefaultUserName = "Demo User"
)

var loginPage = template.Must(template.New("login").Parse(`<!doctype html>
<title>Worklin</title>
<form method="post" action="/login">
  <label>Name <input name="name" value="{{.}}" autofocus></label>
  <button type="submit">Sign in</button>
</form>
`))

// RequireLogin lets signed-in requests through. Others are redirected to
// /login, or answered with 401 JSON when the client asked for JSON.
func (a *App) RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user := a.currentUser(r); user != nil {
			next.ServeHTTP(w, r)
			return
		}
		if wantsJSON(r) {
			respondError(w, http.StatusUnauthorized, "login required")
			return
		}
		http.Redirect(w, r, "/login", http.StatusFound)
	})
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// currentUser reads the demo user from the session cookie.
func (a *App) currentUser(r *http.Request) *models.User {
	sess, err := a.cookies.Get(r, sessionName)
	if err != nil || sess.IsNew {
		return nil
	}
	name, _ := sess.Values["name"].(string)
	rawID, _ := sess.Values["id"].(string)
	id, err := models.ParseUserID(rawID)
	if err != nil || id.IsZero() {
		return nil
	}
	return &models.User{ID: id, Name: name}
}

// signIn stores a fresh demo user in the cookie and in the session state.
func (a *App) signIn(w http.ResponseWriter, r *http.Request, name string) (*models.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultUserName
	}
	user := &models.User{ID: models.NewUserID(), Name: name}

	// a stale or foreign cookie fails to decode; a new session replaces it
	sess, _ := a.cookies.Get(r, sessionName)
	sess.Values["id"] = user.ID.String()
	sess.Values["name"] = user.Name
	if err := sess.Save(r, w); err != nil {
		return nil, err
	}

	a.engine.Session().SetUser(user)
	a.log.Info().Str("user", user.Name).Msg("signed in")
	return user, nil
}

func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req client.LoginRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	user, err := a.signIn(w, r, req.Name)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, client.AuthResponse{User: user})
}

func (a *App) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess, _ := a.cookies.Get(r, sessionName)
	expired := *a.cookies.Options
	expired.MaxAge = -1
	sess.Options = &expired
	if err := sess.Save(r, w); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	a.engine.Session().SetUser(nil)
	respondJSON(w, http.StatusNoContent, nil)
}

func (a *App) handleMe(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, client.AuthResponse{User: a.currentUser(r)})
}

func (a *App) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = loginPage.Execute(w, DefaultUserName)
}

func (a *App) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := a.signIn(w, r, r.PostForm.Get("name")); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleIndex is the landing page after login. There is no bundled UI, so
// it hands out the session state.
func (a *App) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	a.handleState(w, r)
}
