// Command podium is the CLI for the ensemble score artifact manager: it
// maintains the catalog, drives audio and part-book renders through the
// engine, and resolves download links.
package main
