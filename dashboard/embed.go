// Package dashboard provides the embedded live view assets for FlowCache.
//
// This package uses Go's embed directive to include the live view HTML at
// compile time, enabling single-binary deployment without external asset
// files.
//
// The embedded assets are served by the server package at the root path
// ("/"). Users of the flowcache library should not need to interact with
// this package directly.
package dashboard

import "embed"

// Assets is an embedded filesystem containing the live view UI.
//
// The filesystem structure is:
//
//	assets/
//	  index.html    - Live view page with inline CSS and JavaScript
//
// Assets is used by the server package to serve the live view. The embed
// directive includes all files in the assets directory at compile time.
//
//go:embed assets/*
var Assets embed.FS
