package livereload

import (
	"log/slog"
	"net/http"

	"git.home.luguber.info/inful/sitegen/internal/logfields"
)

// Endpoint paths served by the preview server.
const (
	SSEPath       = "/livereload"
	WebSocketPath = "/livereload/ws"
	ScriptPath    = "/livereload.js"
)

// ScriptTag is injected into every served HTML page.
const ScriptTag = `<script async src="` + ScriptPath + `"></script>`

// Script is the browser client. It prefers the WebSocket transport and falls
// back to SSE. The first SSE hash is the baseline; any later one reloads.
const Script = `(() => {
  if (window.__SITEGEN_LR__) return;
  window.__SITEGEN_LR__ = true;
  const reload = () => { console.log('[sitegen] site updated, reloading'); location.reload(); };
  function sse() {
    const es = new EventSource('` + SSEPath + `');
    let current = null;
    es.onmessage = (e) => {
      try {
        const p = JSON.parse(e.data);
        if (current === null) { current = p.hash; return; }
        if (p.hash && p.hash !== current) reload();
      } catch (_) {}
    };
    es.onerror = () => { es.close(); setTimeout(sse, 2000); };
  }
  function ws() {
    if (!('WebSocket' in window)) return sse();
    const proto = location.protocol === 'https:' ? 'wss:' : 'ws:';
    const sock = new WebSocket(proto + '//' + location.host + '` + WebSocketPath + `');
    let opened = false;
    sock.onopen = () => { opened = true; };
    sock.onmessage = (e) => {
      try { if (JSON.parse(e.data).cmd === 'reload') reload(); } catch (_) {}
    };
    sock.onclose = () => { if (opened) setTimeout(ws, 2000); else sse(); };
  }
  ws();
})();`

// ScriptHandler serves Script.
func ScriptHandler(logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		if _, err := w.Write([]byte(Script)); err != nil {
			logger.Debug("Failed to write livereload script", logfields.Error(err))
		}
	})
}
