// Package templates compiles page templates and keeps them in a per-pass Registry.
//
// Templates are mustache text. Front matter declared at the top of a template
// file becomes the template's defaults; page metadata overrides them. Other
// templates can be included as partials with {{> name}}.
package templates
