package livereload

import (
	"bytes"
	"net/http"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const maxInjectSize = 512 * 1024

// InjectScript inserts tag before the last </body> of doc, or appends it when
// the document has no body end tag.
func InjectScript(doc []byte, tag string) []byte {
	at := lastBodyEnd(doc)
	if at < 0 {
		out := make([]byte, 0, len(doc)+len(tag))
		out = append(out, doc...)
		return append(out, tag...)
	}
	out := make([]byte, 0, len(doc)+len(tag))
	out = append(out, doc[:at]...)
	out = append(out, tag...)
	return append(out, doc[at:]...)
}

// lastBodyEnd returns the byte offset of the last </body> token, or -1.
func lastBodyEnd(doc []byte) int {
	z := html.NewTokenizer(bytes.NewReader(doc))
	offset, found := 0, -1
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			// io.EOF or a malformed tail; either way the scan is done.
			return found
		}
		raw := len(z.Raw())
		if tt == html.EndTagToken {
			if name, _ := z.TagName(); atom.Lookup(name) == atom.Body {
				found = offset
			}
		}
		offset += raw
	}
}

// Injector wraps next and adds tag to HTML responses.
func Injector(next http.Handler, tag string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || !htmlPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		iw := &injectWriter{ResponseWriter: w, status: http.StatusOK, tag: tag}
		next.ServeHTTP(iw, r)
		iw.finalize()
	})
}

func htmlPath(p string) bool {
	return p == "" || strings.HasSuffix(p, "/") || strings.HasSuffix(p, ".html") || strings.HasSuffix(p, ".htm")
}

// injectWriter buffers HTML bodies up to maxInjectSize. Anything else, or
// anything larger, passes through unchanged.
type injectWriter struct {
	http.ResponseWriter
	status        int
	tag           string
	buf           []byte
	buffering     bool
	passthrough   bool
	headerWritten bool
}

func (iw *injectWriter) WriteHeader(code int) {
	iw.status = code
	if iw.passthrough {
		iw.writeHeader()
	}
}

func (iw *injectWriter) writeHeader() {
	if !iw.headerWritten {
		iw.ResponseWriter.WriteHeader(iw.status)
		iw.headerWritten = true
	}
}

func (iw *injectWriter) Write(data []byte) (int, error) {
	if !iw.buffering && !iw.passthrough {
		ct := iw.Header().Get("Content-Type")
		if iw.status != http.StatusOK || (ct != "" && !strings.Contains(ct, "text/html")) {
			iw.passthrough = true
		} else {
			iw.buffering = true
		}
	}
	if iw.passthrough {
		iw.writeHeader()
		return iw.ResponseWriter.Write(data)
	}

	if len(iw.buf)+len(data) > maxInjectSize {
		iw.passthrough = true
		iw.buffering = false
		iw.writeHeader()
		if len(iw.buf) > 0 {
			if _, err := iw.ResponseWriter.Write(iw.buf); err != nil {
				return 0, err
			}
			iw.buf = nil
		}
		return iw.ResponseWriter.Write(data)
	}
	iw.buf = append(iw.buf, data...)
	return len(data), nil
}

func (iw *injectWriter) finalize() {
	if !iw.buffering || len(iw.buf) == 0 {
		iw.writeHeader()
		return
	}
	out := InjectScript(iw.buf, iw.tag)
	iw.Header().Del("Content-Length")
	iw.writeHeader()
	_, _ = iw.ResponseWriter.Write(out)
}
