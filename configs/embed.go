// Package configs carries the configuration templates shipped with
// cidx. Templates are embedded at build time so `cidx init` and
// `cidx config init` work from any distribution of the binary, not
// just source checkouts.
//
// The precedence of the resulting files is defined in
// internal/config: built-in defaults, then the user config, then the
// project config, then CIDX_* environment variables.
package configs

import _ "embed"

// ProjectConfigTemplate seeds .cidx.yaml in a project root. Written
// by `cidx init`; the settings in it travel with the repository.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string

// UserConfigTemplate seeds the per-machine configuration under
// ~/.config/cidx. Written by `cidx config init`.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string
