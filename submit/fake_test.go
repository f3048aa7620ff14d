package submit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/talentpilot/talentpilot/browser"
)

// fakeEl is a scriptable Element.
type fakeEl struct {
	text     string
	value    string
	attrs    map[string]string
	children map[string][]*fakeEl

	clicks     int
	inputs     []string
	inputErr   error
	selectErr  error
	clickErr   error
	valueReads int
	// valueAfterReads, when >= 0, makes Value return empty until that
	// many reads have happened. Models async rerender eating the fill.
	valueAfterReads int
}

func newEl(text string) *fakeEl {
	return &fakeEl{text: text, attrs: map[string]string{}, children: map[string][]*fakeEl{}, valueAfterReads: -1}
}

func (f *fakeEl) Text(context.Context) (string, error) { return f.text, nil }

func (f *fakeEl) Attribute(_ context.Context, name string) (string, error) {
	return f.attrs[name], nil
}

func (f *fakeEl) Value(context.Context) (string, error) {
	f.valueReads++
	if f.valueAfterReads >= 0 && f.valueReads <= f.valueAfterReads {
		return "", nil
	}
	return f.value, nil
}

func (f *fakeEl) Visible(context.Context) (bool, error) { return true, nil }

func (f *fakeEl) Input(_ context.Context, v string) error {
	if f.inputErr != nil {
		return f.inputErr
	}
	f.inputs = append(f.inputs, v)
	f.value = v
	return nil
}

func (f *fakeEl) Click(context.Context) error {
	if f.clickErr != nil {
		return f.clickErr
	}
	f.clicks++
	return nil
}

func (f *fakeEl) SelectOption(_ context.Context, label string) error {
	if f.selectErr != nil {
		return f.selectErr
	}
	f.value = label
	return nil
}

func (f *fakeEl) SetFiles(_ context.Context, path string) error {
	f.inputs = append(f.inputs, path)
	return nil
}

func (f *fakeEl) Query(_ context.Context, sel string) (browser.Element, error) {
	if els := f.children[sel]; len(els) > 0 {
		return els[0], nil
	}
	return nil, nil
}

func (f *fakeEl) QueryAll(_ context.Context, sel string) ([]browser.Element, error) {
	var out []browser.Element
	for _, el := range f.children[sel] {
		out = append(out, el)
	}
	return out, nil
}

var _ browser.Element = (*fakeEl)(nil)

// formStep is one page of a scripted form.
type formStep struct {
	fields    []FormField
	elements  map[string]*fakeEl   // Query by selector
	elementsN map[string][]*fakeEl // QueryAll by selector
}

// fakeForm is a scriptable Adapter whose "next" buttons advance through
// scripted steps.
type fakeForm struct {
	steps   []*formStep
	cur     int
	url     string
	navErr  error
	// navFailures, when > 0, limits navErr to the first N navigations.
	navFailures int
	visited     []string

	applyEntry *fakeEl
	submitBtn  *fakeEl
	nextBtns   []*fakeEl
	closed     bool
}

func newForm(url string, steps ...*formStep) *fakeForm {
	f := &fakeForm{steps: steps, url: url}
	f.applyEntry = newEl("Easy Apply")
	f.submitBtn = newEl("Submit application")
	for i := 1; i < len(steps); i++ {
		btn := newEl("Next")
		f.nextBtns = append(f.nextBtns, btn)
	}
	return f
}

func (f *fakeForm) step() *formStep {
	if f.cur < len(f.steps) {
		return f.steps[f.cur]
	}
	return &formStep{}
}

func (f *fakeForm) Navigate(_ context.Context, url string) error {
	f.visited = append(f.visited, url)
	if f.navErr != nil && (f.navFailures == 0 || len(f.visited) <= f.navFailures) {
		return f.navErr
	}
	f.url = url
	return nil
}

func (f *fakeForm) PageURL(context.Context) (string, error) { return f.url, nil }

func (f *fakeForm) HTML(context.Context) (string, error) { return "", nil }

func (f *fakeForm) Query(ctx context.Context, sel string) (browser.Element, error) {
	if el, ok := f.step().elements[sel]; ok {
		return el, nil
	}
	return nil, nil
}

func (f *fakeForm) QueryAll(ctx context.Context, sel string) ([]browser.Element, error) {
	if sel == "a[href*='/apply/']" {
		if f.applyEntry == nil {
			return nil, nil
		}
		return []browser.Element{f.applyEntry}, nil
	}
	if sel == "button" {
		return f.stepButtons(), nil
	}
	var out []browser.Element
	for _, el := range f.step().elementsN[sel] {
		out = append(out, el)
	}
	return out, nil
}

// stepButtons exposes Submit on the last step and Next elsewhere. Next
// clicks advance the form.
func (f *fakeForm) stepButtons() []browser.Element {
	if f.cur >= len(f.steps)-1 {
		return []browser.Element{f.submitBtn}
	}
	return []browser.Element{&advancingEl{fakeEl: f.nextBtns[f.cur], form: f}}
}

type advancingEl struct {
	*fakeEl
	form *fakeForm
}

func (a *advancingEl) Click(ctx context.Context) error {
	if err := a.fakeEl.Click(ctx); err != nil {
		return err
	}
	a.form.cur++
	return nil
}

func (f *fakeForm) WaitVisible(context.Context, string) (browser.Element, error) {
	return nil, fmt.Errorf("not scripted")
}

func (f *fakeForm) Eval(context.Context, string) (string, error) {
	data, err := json.Marshal(f.step().fields)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (f *fakeForm) Close() error {
	f.closed = true
	return nil
}

var _ browser.Adapter = (*fakeForm)(nil)

// fakePages is a scriptable PageSource.
type fakePages struct {
	pages    []browser.Adapter
	newCalls int
	checkErr error
}

func (s *fakePages) NewPage(context.Context) (browser.Adapter, error) {
	s.newCalls++
	if len(s.pages) == 0 {
		return nil, fmt.Errorf("no more pages scripted")
	}
	p := s.pages[0]
	s.pages = s.pages[1:]
	return p, nil
}

func (s *fakePages) CheckPage(ctx context.Context, page browser.Adapter) error {
	return s.checkErr
}

var _ PageSource = (*fakePages)(nil)
