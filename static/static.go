// Package static embeds the built-in surface pages the hub serves.
package static

import "embed"

//go:embed *.html *.css *.js
var Files embed.FS
