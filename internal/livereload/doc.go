// Package livereload tells connected browsers to reload after a completed
// generation pass.
//
// Three transports implement build.Notifier: an SSE hub (/livereload), a
// WebSocket server (/livereload/ws) and an optional NATS publisher for other
// processes. Injector adds the client script to served HTML pages.
package livereload
