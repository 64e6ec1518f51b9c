// Package configs embeds the configuration template shipped with the
// daemon. `lantern config init` writes it to
// ~/.config/lantern/config.yaml; from there the hierarchy is
// defaults, then the user config, then LANTERN_* environment
// variables (see internal/config).
package configs

import _ "embed"

// UserConfigTemplate is the annotated starting point for the user
// config file.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string
