package browser

import (
	"context"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Page adapts one rod page to the Adapter interface. All calls scope the
// underlying page to the given context, so timeouts bound every CDP
// round-trip.
type Page struct {
	page *rod.Page
}

var _ Adapter = (*Page)(nil)

// Navigate loads url and waits for the load event. Load-wait timeouts are
// reported as transient: SDUI pages keep streaming long after the DOM is
// usable.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.page.Context(ctx).Navigate(url); err != nil {
		return classify("navigate "+url, err)
	}
	if err := p.page.Context(ctx).WaitLoad(); err != nil {
		return classify("wait load "+url, err)
	}
	return nil
}

func (p *Page) PageURL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", classify("page info", err)
	}
	return info.URL, nil
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	html, err := p.page.Context(ctx).HTML()
	if err != nil {
		return "", classify("page html", err)
	}
	return html, nil
}

// Query returns the first match without waiting, or (nil, nil) when the
// selector matches nothing.
func (p *Page) Query(ctx context.Context, selector string) (Element, error) {
	has, el, err := p.page.Context(ctx).Has(selector)
	if err != nil {
		return nil, classify("query "+selector, err)
	}
	if !has {
		return nil, nil
	}
	return &rodElement{el: el}, nil
}

func (p *Page) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	els, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, classify("query all "+selector, err)
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el})
	}
	return out, nil
}

func (p *Page) WaitVisible(ctx context.Context, selector string) (Element, error) {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return nil, classify("wait "+selector, err)
	}
	if err := el.Context(ctx).WaitVisible(); err != nil {
		return nil, classify("wait visible "+selector, err)
	}
	return &rodElement{el: el}, nil
}

func (p *Page) Eval(ctx context.Context, js string) (string, error) {
	res, err := p.page.Context(ctx).Eval(js)
	if err != nil {
		return "", classify("eval", err)
	}
	return res.Value.JSON("", ""), nil
}

func (p *Page) Close() error {
	return p.page.Close()
}

type rodElement struct {
	el *rod.Element
}

var _ Element = (*rodElement)(nil)

func (e *rodElement) Text(ctx context.Context) (string, error) {
	s, err := e.el.Context(ctx).Text()
	if err != nil {
		return "", classify("element text", err)
	}
	return s, nil
}

func (e *rodElement) Attribute(ctx context.Context, name string) (string, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", classify("attribute "+name, err)
	}
	if v == nil {
		return "", nil
	}
	return *v, nil
}

func (e *rodElement) Value(ctx context.Context) (string, error) {
	v, err := e.el.Context(ctx).Property("value")
	if err != nil {
		return "", classify("element value", err)
	}
	return v.Str(), nil
}

func (e *rodElement) Visible(ctx context.Context) (bool, error) {
	vis, err := e.el.Context(ctx).Visible()
	if err != nil {
		return false, classify("element visible", err)
	}
	return vis, nil
}

// Input clears any existing content first so a refill after a failed
// read-back never concatenates.
func (e *rodElement) Input(ctx context.Context, value string) error {
	el := e.el.Context(ctx)
	if err := el.SelectAllText(); err != nil {
		return classify("select text", err)
	}
	if err := el.Input(value); err != nil {
		return classify("input", err)
	}
	return nil
}

func (e *rodElement) Click(ctx context.Context) error {
	if err := e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return classify("click", err)
	}
	return nil
}

func (e *rodElement) SelectOption(ctx context.Context, label string) error {
	if err := e.el.Context(ctx).Select([]string{label}, true, rod.SelectorTypeText); err != nil {
		return classify("select option "+label, err)
	}
	return nil
}

func (e *rodElement) SetFiles(ctx context.Context, path string) error {
	if err := e.el.Context(ctx).SetFiles([]string{path}); err != nil {
		return classify("set files", err)
	}
	return nil
}

func (e *rodElement) Query(ctx context.Context, selector string) (Element, error) {
	els, err := e.el.Context(ctx).Elements(selector)
	if err != nil {
		return nil, classify("element query "+selector, err)
	}
	if len(els) == 0 {
		return nil, nil
	}
	return &rodElement{el: els.First()}, nil
}

func (e *rodElement) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	els, err := e.el.Context(ctx).Elements(selector)
	if err != nil {
		return nil, classify("element query all "+selector, err)
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el})
	}
	return out, nil
}
