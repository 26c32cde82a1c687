package model

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ActionItem is the actionable part of a notification. When present with a
// non-blank description, a recurring notification turns it into TODO tasks.
type ActionItem struct {
	Description string
	Category    string
}

// NewActionItem returns an ActionItem with NFC-normalized, trimmed text.
func NewActionItem(description, category string) *ActionItem {
	return &ActionItem{
		Description: normalizeText(description),
		Category:    normalizeText(category),
	}
}

// Eligible reports whether the item can generate TODO tasks.
// A nil item is never eligible.
func (a *ActionItem) Eligible() bool {
	return a != nil && strings.TrimSpace(a.Description) != ""
}

// ActionItemTransfer is the transfer representation of an ActionItem used by
// API and CLI layers.
type ActionItemTransfer struct {
	Description string `json:"description" yaml:"description"`
	Category    string `json:"category" yaml:"category"`
}

// ToTransfer converts an ActionItem to its transfer form.
// A nil item converts to nil.
func ToTransfer(a *ActionItem) *ActionItemTransfer {
	if a == nil {
		return nil
	}
	return &ActionItemTransfer{
		Description: a.Description,
		Category:    a.Category,
	}
}

// FromTransfer converts a transfer form back to an ActionItem.
// A nil transfer converts to nil.
func FromTransfer(t *ActionItemTransfer) *ActionItem {
	if t == nil {
		return nil
	}
	return &ActionItem{
		Description: t.Description,
		Category:    t.Category,
	}
}

func normalizeText(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}
