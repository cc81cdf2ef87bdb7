// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI provides a two-view catalog browser:
//  1. [PlaylistListView] : Browse playlists from the upstream music API
//  2. [TrackListView] : View a selected playlist's tracks
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern.
// Catalog data is fetched through the authenticated proxy client, so browsing
// exercises the same token acquisition path as the CLI and gateway.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
