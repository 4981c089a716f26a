package main

import (
	"html/template"
	"log/slog"
	"net/http"

	"voicebar/config"
)

// statusPage is the whole frontend: it renders the permission view and
// re-renders on every snapshot event.
var statusPage = template.Must(template.New("status").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>{{.}}</title>
<style>
body { font: 13px -apple-system, sans-serif; margin: 16px; }
li { margin: 4px 0; }
.granted { color: #1a7f37; }
.denied, .error { color: #cf222e; }
.not_determined { color: #9a6700; }
</style>
</head>
<body>
<h3>{{.}} permissions</h3>
<ul id="items"></ul>
<button id="refresh">Check again</button>
<p id="mcp"></p>
<script>
function render(view) {
  const ul = document.getElementById("items");
  ul.innerHTML = "";
  for (const item of view.items) {
    const li = document.createElement("li");
    li.className = item.status;
    li.textContent = item.kind + (item.critical ? " (required)" : "") + ": " + item.status;
    if (!item.granted) {
      const open = document.createElement("a");
      open.href = "#";
      open.textContent = " Open Settings";
      open.onclick = () => window.go.main.App.OpenPermissionSettings(item.kind);
      li.appendChild(open);
    }
    ul.appendChild(li);
  }
}
window.runtime.EventsOn("permissions:snapshot", render);
window.go.main.App.GetPermissionStatus().then(render).catch(() => {});
window.go.main.App.GetMCPServerURL().then(url => {
  if (url) document.getElementById("mcp").textContent = "Agent status tool: " + url;
});
document.getElementById("refresh").onclick = () =>
  window.go.main.App.RefreshPermissions(true).then(render);
</script>
</body>
</html>
`))

func serveStatusPage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := statusPage.Execute(w, config.AppName); err != nil {
		slog.Error("failed to render status page", "error", err)
	}
}
