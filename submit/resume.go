package submit

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/talentpilot/talentpilot/browser"
)

const (
	requiredUploadSelector = ".jobs-document-upload__title--is-required"
	resumeCardSelector     = "div[class*='ui-attachment--pdf']"
)

// fileInputSelectors are tried in order when uploading a resume file.
// Visible inputs come first; the site sometimes hides the real input
// behind a styled button, so the bare type selector is the catch-all.
var fileInputSelectors = []string{
	"input[name*='resume']",
	"input[accept*='.pdf']",
	"input[type='file']",
}

// ResumePicker decides between selecting a pre-uploaded resume card and
// uploading a fresh file, per form step.
type ResumePicker struct {
	preferredIndex int
	filePath       string
	log            *slog.Logger
}

// NewResumePicker creates a picker. preferredIndex is 1-based into the
// pre-uploaded card list; filePath, when set and readable, takes priority
// via direct upload.
func NewResumePicker(preferredIndex int, filePath string, log *slog.Logger) *ResumePicker {
	if preferredIndex < 1 {
		preferredIndex = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &ResumePicker{preferredIndex: preferredIndex, filePath: filePath, log: log}
}

// Apply attaches a resume on the current step if the step asks for one.
// A step with no resume prompt is a no-op. A required prompt that cannot
// be satisfied returns an error, which the engine treats as a field-fill
// failure rather than a fatal one.
func (p *ResumePicker) Apply(ctx context.Context, page browser.Adapter) error {
	if p.filePath != "" {
		if _, err := os.Stat(p.filePath); err == nil {
			if uploaded, err := p.tryUpload(ctx, page); err != nil {
				return err
			} else if uploaded {
				return nil
			}
		}
	}
	return p.tryCardSelection(ctx, page)
}

func (p *ResumePicker) tryUpload(ctx context.Context, page browser.Adapter) (bool, error) {
	var lastErr error
	for _, sel := range fileInputSelectors {
		inputs, err := page.QueryAll(ctx, sel)
		if err != nil {
			return false, err
		}
		for _, inp := range inputs {
			if err := inp.SetFiles(ctx, p.filePath); err != nil {
				lastErr = err
				continue
			}
			p.log.Info("submit: uploaded resume", "selector", sel)
			return true, nil
		}
	}
	if lastErr != nil {
		return false, fmt.Errorf("submit: resume upload: %w", lastErr)
	}
	return false, nil
}

func (p *ResumePicker) tryCardSelection(ctx context.Context, page browser.Adapter) error {
	marker, err := page.Query(ctx, requiredUploadSelector)
	if err != nil {
		return err
	}
	if marker == nil {
		return nil
	}

	cards, err := page.QueryAll(ctx, resumeCardSelector)
	if err != nil {
		return err
	}
	if len(cards) == 0 {
		return fmt.Errorf("submit: resume required but no cards and no upload path")
	}

	idx := p.preferredIndex - 1
	if idx >= len(cards) {
		idx = 0
	}
	if err := cards[idx].Click(ctx); err != nil {
		return fmt.Errorf("submit: select resume card: %w", err)
	}
	p.log.Info("submit: selected resume card", "index", idx+1)
	return nil
}
