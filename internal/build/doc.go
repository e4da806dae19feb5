// Package build runs generation passes.
//
// A pass is strictly sequential: the templates tree is walked and compiled
// into a fresh registry, then the pages tree is walked and every page is
// rendered against that registry, then reload notifiers are told the site
// changed. Nothing is cached between passes. All execution paths (CLI,
// watcher, scheduler, tests) route through Orchestrator.Run.
package build
