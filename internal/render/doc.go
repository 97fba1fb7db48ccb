// Package render defines the rendering engine interface and its HTTP client.
// The engine is a black box: podium triggers renders, polls job state, and
// asks for artifact download links; it never sees the typesetting itself.
package render
