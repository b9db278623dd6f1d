package deal

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrDealNotFound is returned when the referenced deal does not exist.
	ErrDealNotFound = errors.New("deal not found")
	// ErrAlreadySigned is returned when acceptance is reapplied to a deal
	// that has already reached a terminal state.
	ErrAlreadySigned = errors.New("deal already signed")
	// ErrInvalidTransition is returned for lifecycle moves the state machine
	// does not define.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrQuoteNumberCollision surfaces when the store cannot allocate a
	// unique quote number. It propagates as-is; retry policy belongs to the
	// persistence layer, not here.
	ErrQuoteNumberCollision = errors.New("quote number collision")
	// ErrMissingSignature is returned when acceptance lacks a name, email,
	// or signature image.
	ErrMissingSignature = errors.New("signature fields incomplete")
)

// MarkSent moves a draft deal to Sent. Calling it on a deal that is already
// Sent is a no-op so signature requests can be retried safely.
func MarkSent(d *Deal) error {
	switch d.Status {
	case StatusDraft:
		d.Status = StatusSent
		return nil
	case StatusSent:
		return nil
	default:
		return fmt.Errorf("%w: cannot send from %s", ErrInvalidTransition, d.Status)
	}
}

// MarkViewed records that the recipient opened the quote. Only valid once the
// quote has been sent; viewing again keeps the Viewed state.
func MarkViewed(d *Deal) error {
	switch d.Status {
	case StatusSent, StatusViewed:
		d.Status = StatusViewed
		return nil
	default:
		return fmt.Errorf("%w: cannot view from %s", ErrInvalidTransition, d.Status)
	}
}

// ApplySignature accepts the quote on behalf of the recipient. The transition
// is terminal; reapplying acceptance fails with ErrAlreadySigned and never
// reverts or overwrites the recorded signature.
func ApplySignature(d *Deal, sig SignedBy, now time.Time) error {
	if d.Status == StatusAccepted {
		return ErrAlreadySigned
	}
	switch d.Status {
	case StatusSent, StatusViewed:
	default:
		return fmt.Errorf("%w: cannot sign from %s", ErrInvalidTransition, d.Status)
	}
	if strings.TrimSpace(sig.Name) == "" || strings.TrimSpace(sig.Email) == "" || strings.TrimSpace(sig.SignatureImageRef) == "" {
		return ErrMissingSignature
	}
	d.SignedBy = &sig
	d.SignatureDate = &now
	d.Status = StatusAccepted
	return nil
}

// ManualStatus applies an operator-driven move from an open state to a
// terminal one. Accepting through this path records the signature date if it
// is absent, matching a deal closed over the phone rather than by token.
func ManualStatus(d *Deal, target Status, now time.Time) error {
	switch target {
	case StatusAccepted, StatusRejected, StatusExpired, StatusConverted:
	default:
		return fmt.Errorf("%w: %s is not an operator-assignable status", ErrInvalidTransition, target)
	}
	switch d.Status {
	case StatusDraft, StatusSent, StatusViewed:
	default:
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, d.Status)
	}
	d.Status = target
	if target == StatusAccepted && d.SignatureDate == nil {
		d.SignatureDate = &now
	}
	return nil
}

// AttachPDF records the rendered document reference. Generating a PDF never
// implies a lifecycle transition.
func AttachPDF(d *Deal, ref string) error {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return errors.New("deal: pdf reference is required")
	}
	d.PDFRef = &trimmed
	return nil
}
