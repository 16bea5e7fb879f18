package gatehouse

import (
	"html/template"
	"net/http"

	"github.com/gatehouse-auth/gatehouse/server"
	"github.com/gatehouse-auth/gatehouse/storage"
)

// The interaction pages are deliberately plain HTML with inline styles
// only. The CSP set by security.SetSecurityHeaders forbids scripts and
// external resources, so the pages must stand on their own.

var loginPage = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Sign in</title>
<style>
body { font-family: system-ui, sans-serif; background: #f4f4f5; margin: 0; }
.card { max-width: 22rem; margin: 8vh auto; padding: 2rem; background: #fff; border-radius: 8px; box-shadow: 0 1px 4px rgba(0,0,0,.1); }
h1 { font-size: 1.2rem; margin-top: 0; }
label { display: block; margin: .75rem 0 .25rem; font-size: .9rem; }
input { width: 100%; padding: .5rem; border: 1px solid #d4d4d8; border-radius: 4px; box-sizing: border-box; }
button { width: 100%; margin-top: 1.25rem; padding: .6rem; border: 0; border-radius: 4px; background: #18181b; color: #fff; font-size: 1rem; cursor: pointer; }
.error { color: #b91c1c; font-size: .9rem; margin: .5rem 0 0; }
.client { color: #52525b; font-size: .9rem; }
</style>
</head>
<body>
<div class="card">
<h1>Sign in</h1>
<p class="client"><strong>{{.ClientName}}</strong> is requesting access to your account.</p>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<form method="post" action="/authorize">
<label for="username">Username</label>
<input type="text" id="username" name="username" autocomplete="username" autofocus required>
<label for="password">Password</label>
<input type="password" id="password" name="password" autocomplete="current-password" required>
<button type="submit">Sign in</button>
</form>
</div>
</body>
</html>
`))

var consentPage = template.Must(template.New("consent").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Authorize {{.ClientName}}</title>
<style>
body { font-family: system-ui, sans-serif; background: #f4f4f5; margin: 0; }
.card { max-width: 22rem; margin: 8vh auto; padding: 2rem; background: #fff; border-radius: 8px; box-shadow: 0 1px 4px rgba(0,0,0,.1); }
h1 { font-size: 1.2rem; margin-top: 0; }
ul { padding-left: 1.25rem; color: #3f3f46; }
.actions { display: flex; gap: .75rem; margin-top: 1.25rem; }
button { flex: 1; padding: .6rem; border: 0; border-radius: 4px; font-size: 1rem; cursor: pointer; }
.approve { background: #18181b; color: #fff; }
.deny { background: #e4e4e7; color: #18181b; }
</style>
</head>
<body>
<div class="card">
<h1>Authorize {{.ClientName}}</h1>
<p>This application is requesting the following permissions:</p>
<ul>
{{range .Scopes}}<li>{{.}}</li>{{end}}
</ul>
<form method="post" action="/consent">
<div class="actions">
<button class="approve" type="submit" name="action" value="approve">Approve</button>
<button class="deny" type="submit" name="action" value="deny">Deny</button>
</div>
</form>
</div>
</body>
</html>
`))

type loginPageData struct {
	ClientName string
	Error      string
}

type consentPageData struct {
	ClientName string
	Scopes     []string
}

func (h *Handler) renderLoginPage(w http.ResponseWriter, req *storage.AuthorizationRequest, errMsg string, status int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := loginPage.Execute(w, loginPageData{
		ClientName: req.ClientName,
		Error:      errMsg,
	}); err != nil {
		h.logger.Error("Failed to render login page", "error", err)
	}
}

func (h *Handler) renderConsentPage(w http.ResponseWriter, req *storage.AuthorizationRequest) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := consentPage.Execute(w, consentPageData{
		ClientName: req.ClientName,
		Scopes:     server.SplitScope(req.Scope),
	}); err != nil {
		h.logger.Error("Failed to render consent page", "error", err)
	}
}
