// Package parser inspects rendered page HTML and normalises scraped values.
package parser

// ContentSource is anything that can return its rendered HTML.
type ContentSource interface {
	Content() (string, error)
}
