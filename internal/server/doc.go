// Package server serves the public root with live reload, metrics, health
// and pass history endpoints.
package server
