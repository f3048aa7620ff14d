// Package submit drives one posting through the multi-step application
// form to a terminal outcome. Each step runs scan → resolve → fill →
// validate → advance; a dead page drops into a bounded recovery path that
// borrows a fresh authenticated page and resumes scanning.
package submit

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/talentpilot/talentpilot/browser"
)

// Kind classifies a form field by the adapter operation needed to fill it.
type Kind string

const (
	KindText     Kind = "text"
	KindPhone    Kind = "phone"
	KindRadio    Kind = "radio"
	KindDropdown Kind = "dropdown"
	KindFile     Kind = "file"
	KindTextarea Kind = "textarea"
)

// FormField is a transient per-step descriptor of one interactive field.
// Selector is the primary locator; Fallback is a structural locator used
// when build-hashed class names or ids have churned under us.
type FormField struct {
	Label    string `json:"label"`
	Kind     Kind   `json:"kind"`
	Selector string `json:"selector"`
	Fallback string `json:"fallback"`
	Required bool   `json:"required"`
	Value    string `json:"value"`
}

// scanJS enumerates the interactive fields of the current form step.
// The site's class names are build-hashed, so fields are discovered from
// stable structure: labels, fieldsets, selects, and file inputs. Each
// descriptor carries a primary selector (id-based) and a structural
// fallback (position-based inside the dialog).
const scanJS = `
() => {
	const root = document.querySelector('[role="dialog"]') ||
		document.querySelector('.artdeco-modal') || document;
	const fields = [];
	const seen = new Set();

	const esc = (id) => (window.CSS && CSS.escape) ? CSS.escape(id) : id;

	const isRequired = (el, labelText) => {
		if (el.required || el.getAttribute('aria-required') === 'true') return true;
		return /\*\s*$/.test(labelText);
	};

	const phoneLike = (t) =>
		t.includes('phone') || t.includes('mobile') || t.includes('cell');

	// Radio groups: one field per fieldset.
	const fieldsets = root.querySelectorAll('fieldset');
	let fsIdx = 0;
	for (const fs of fieldsets) {
		fsIdx++;
		if (fs.querySelectorAll('input[type="radio"], label[data-test-text-selectable-option__label]').length === 0) continue;
		const legend = fs.querySelector('legend, span');
		const label = legend ? legend.innerText.trim() : '';
		if (!label) continue;
		const checked = fs.querySelector('input[type="radio"]:checked');
		fields.push({
			label: label,
			kind: 'radio',
			selector: fs.id ? '#' + esc(fs.id) : '',
			fallback: '[role="dialog"] fieldset:nth-of-type(' + fsIdx + ')',
			required: isRequired(fs, label),
			value: checked ? (checked.value || 'checked') : '',
		});
		for (const inp of fs.querySelectorAll('input')) seen.add(inp);
	}

	// Selects.
	const selects = root.querySelectorAll('select');
	let selIdx = 0;
	for (const sel of selects) {
		selIdx++;
		if (sel.offsetParent === null) continue;
		let label = '';
		if (sel.id) {
			const lbl = root.querySelector('label[for="' + esc(sel.id) + '"]');
			if (lbl) label = lbl.innerText.trim();
		}
		if (!label) label = (sel.getAttribute('aria-label') || '').trim();
		if (!label) {
			const name = (sel.name || sel.id || '').toLowerCase();
			if (name.includes('country')) label = 'Country';
		}
		if (!label) continue;
		const cur = sel.options[sel.selectedIndex]?.text?.trim() || '';
		const placeholder = ['select an option', 'select', '--', ''];
		fields.push({
			label: label,
			kind: 'dropdown',
			selector: sel.id ? '#' + esc(sel.id) : '',
			fallback: '[role="dialog"] select:nth-of-type(' + selIdx + ')',
			required: isRequired(sel, label),
			value: placeholder.includes(cur.toLowerCase()) ? '' : cur,
		});
		seen.add(sel);
	}

	// Labelled inputs and textareas.
	const labels = root.querySelectorAll('label');
	for (const lbl of labels) {
		const labelText = lbl.innerText.trim();
		if (!labelText) continue;
		const forAttr = lbl.getAttribute('for');
		let input = forAttr ? document.getElementById(forAttr) : null;
		if (!input) input = lbl.querySelector('input, textarea');
		if (!input) input = lbl.parentElement?.querySelector('input, textarea');
		if (!input || seen.has(input)) continue;
		if (input.type === 'radio' || input.type === 'checkbox' || input.type === 'hidden') continue;
		seen.add(input);

		let kind = 'text';
		if (input.tagName === 'TEXTAREA') kind = 'textarea';
		else if (input.type === 'file') kind = 'file';
		else if (input.type === 'tel' || phoneLike(labelText.toLowerCase())) kind = 'phone';

		fields.push({
			label: labelText,
			kind: kind,
			selector: input.id ? '#' + esc(input.id) : '',
			fallback: '',
			required: isRequired(input, labelText),
			value: (input.value || '').trim(),
		});
	}

	// Unlabelled file inputs (often visually hidden).
	const files = root.querySelectorAll('input[type="file"]');
	for (const inp of files) {
		if (seen.has(inp)) continue;
		seen.add(inp);
		fields.push({
			label: 'Resume',
			kind: 'file',
			selector: inp.id ? '#' + esc(inp.id) : 'input[type="file"]',
			fallback: 'input[type="file"]',
			required: false,
			value: '',
		});
	}

	return fields;
}`

// ScanFields enumerates the interactive fields of the current form step.
func ScanFields(ctx context.Context, page browser.Adapter) ([]FormField, error) {
	raw, err := page.Eval(ctx, scanJS)
	if err != nil {
		return nil, err
	}
	var fields []FormField
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("submit: parse field scan: %w", err)
	}
	return fields, nil
}

// locate resolves a field descriptor to a live element, primary selector
// first and structural fallback second. (nil, nil) means the field has
// vanished from the DOM.
func locate(ctx context.Context, page browser.Adapter, f FormField) (browser.Element, error) {
	if f.Selector != "" {
		el, err := page.Query(ctx, f.Selector)
		if err != nil {
			return nil, err
		}
		if el != nil {
			return el, nil
		}
	}
	if f.Fallback != "" {
		return page.Query(ctx, f.Fallback)
	}
	return nil, nil
}

var slugScrub = regexp.MustCompile(`[^a-z0-9]+`)

// Slug turns a field label into a stable reason token, e.g.
// "Years of Experience *" -> "years-of-experience".
func Slug(label string) string {
	s := slugScrub.ReplaceAllString(strings.ToLower(label), "-")
	return strings.Trim(s, "-")
}
