// Package browser abstracts the automation library behind a small
// capability interface — navigate, query, fill, select, upload, click —
// so the submission engine stays polymorphic over adapter variants and a
// deterministic fake can stand in during tests.
//
// Every method takes a context and classifies failures into ErrTransient
// (timeout, retry in place) or ErrStale (dead page, recover first).
package browser

import "context"

// Adapter is the capability boundary over one browser page.
type Adapter interface {
	// Navigate loads url and waits for the load event.
	Navigate(ctx context.Context, url string) error

	// PageURL returns the current page URL.
	PageURL(ctx context.Context) (string, error)

	// HTML returns the full serialized DOM of the current page.
	HTML(ctx context.Context) (string, error)

	// Query returns the first element matching selector without waiting,
	// or (nil, nil) when absent.
	Query(ctx context.Context, selector string) (Element, error)

	// QueryAll returns every element matching selector (possibly empty).
	QueryAll(ctx context.Context, selector string) ([]Element, error)

	// WaitVisible blocks until selector is present and visible.
	WaitVisible(ctx context.Context, selector string) (Element, error)

	// Eval runs a JS function expression and returns its result as a
	// JSON-encoded string.
	Eval(ctx context.Context, js string) (string, error)

	// Close releases the underlying page.
	Close() error
}

// Element is one interactive DOM node.
type Element interface {
	// Text returns the element's visible text.
	Text(ctx context.Context) (string, error)

	// Attribute returns the named attribute, or "" when absent.
	Attribute(ctx context.Context, name string) (string, error)

	// Value returns the element's current input value.
	Value(ctx context.Context) (string, error)

	// Visible reports whether the element is rendered and visible.
	Visible(ctx context.Context) (bool, error)

	// Input clears the element and types value into it.
	Input(ctx context.Context, value string) error

	// Click clicks the element.
	Click(ctx context.Context) error

	// SelectOption picks the <select> option whose label matches.
	SelectOption(ctx context.Context, label string) error

	// SetFiles attaches a local file to a file input.
	SetFiles(ctx context.Context, path string) error

	// Query returns the first descendant matching selector, or (nil, nil).
	Query(ctx context.Context, selector string) (Element, error)

	// QueryAll returns all descendants matching selector.
	QueryAll(ctx context.Context, selector string) ([]Element, error)
}
