// Package dashboard provides the embedded web UI assets for boardlink.
//
// The assets are compiled into the binary and served by the server package
// at the root path ("/").
package dashboard

import "embed"

// Assets is an embedded filesystem containing the dashboard web UI.
//
// The filesystem structure is:
//
//	assets/
//	  index.html    - live component table with inline CSS and JavaScript
//
//go:embed assets/*
var Assets embed.FS
