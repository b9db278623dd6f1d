package deal

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testClock = time.Date(2023, 4, 15, 10, 30, 0, 0, time.UTC)

func testSignature() SignedBy {
	return SignedBy{
		Name:              "Jane Roe",
		Email:             "jane@example.com",
		Title:             "CTO",
		SignatureImageRef: "signatures/jane.png",
	}
}

func TestMarkSent(t *testing.T) {
	d := Deal{Status: StatusDraft}
	require.NoError(t, MarkSent(&d))
	assert.Equal(t, StatusSent, d.Status)

	// Resending is a no-op.
	require.NoError(t, MarkSent(&d))
	assert.Equal(t, StatusSent, d.Status)

	for _, status := range []Status{StatusViewed, StatusAccepted, StatusRejected, StatusExpired, StatusConverted} {
		d := Deal{Status: status}
		err := MarkSent(&d)
		require.ErrorIs(t, err, ErrInvalidTransition, "from %s", status)
		assert.Equal(t, status, d.Status)
	}
}

func TestMarkViewed(t *testing.T) {
	d := Deal{Status: StatusSent}
	require.NoError(t, MarkViewed(&d))
	assert.Equal(t, StatusViewed, d.Status)

	require.NoError(t, MarkViewed(&d))
	assert.Equal(t, StatusViewed, d.Status)

	for _, status := range []Status{StatusDraft, StatusAccepted, StatusRejected} {
		d := Deal{Status: status}
		require.ErrorIs(t, MarkViewed(&d), ErrInvalidTransition, "from %s", status)
	}
}

func TestApplySignature(t *testing.T) {
	t.Run("from sent", func(t *testing.T) {
		d := Deal{Status: StatusSent}
		require.NoError(t, ApplySignature(&d, testSignature(), testClock))
		assert.Equal(t, StatusAccepted, d.Status)
		require.NotNil(t, d.SignedBy)
		assert.Equal(t, "jane@example.com", d.SignedBy.Email)
		require.NotNil(t, d.SignatureDate)
		assert.True(t, d.SignatureDate.Equal(testClock))
	})

	t.Run("from viewed", func(t *testing.T) {
		d := Deal{Status: StatusViewed}
		require.NoError(t, ApplySignature(&d, testSignature(), testClock))
		assert.Equal(t, StatusAccepted, d.Status)
	})

	t.Run("second signature rejected", func(t *testing.T) {
		d := Deal{Status: StatusViewed}
		require.NoError(t, ApplySignature(&d, testSignature(), testClock))
		first := *d.SignedBy

		later := testClock.Add(time.Hour)
		err := ApplySignature(&d, SignedBy{Name: "Eve", Email: "eve@example.com", SignatureImageRef: "x.png"}, later)
		require.ErrorIs(t, err, ErrAlreadySigned)
		assert.Equal(t, first, *d.SignedBy, "recorded signature must not be overwritten")
		assert.True(t, d.SignatureDate.Equal(testClock))
	})

	t.Run("from draft rejected", func(t *testing.T) {
		d := Deal{Status: StatusDraft}
		require.ErrorIs(t, ApplySignature(&d, testSignature(), testClock), ErrInvalidTransition)
	})

	t.Run("incomplete signature", func(t *testing.T) {
		for _, sig := range []SignedBy{
			{Email: "jane@example.com", SignatureImageRef: "x.png"},
			{Name: "Jane", SignatureImageRef: "x.png"},
			{Name: "Jane", Email: "jane@example.com"},
			{Name: "   ", Email: "jane@example.com", SignatureImageRef: "x.png"},
		} {
			d := Deal{Status: StatusSent}
			require.ErrorIs(t, ApplySignature(&d, sig, testClock), ErrMissingSignature)
			assert.Equal(t, StatusSent, d.Status)
		}
	})
}

func TestManualStatus(t *testing.T) {
	t.Run("operator acceptance records date", func(t *testing.T) {
		d := Deal{Status: StatusSent}
		require.NoError(t, ManualStatus(&d, StatusAccepted, testClock))
		assert.Equal(t, StatusAccepted, d.Status)
		require.NotNil(t, d.SignatureDate)
		assert.True(t, d.SignatureDate.Equal(testClock))
	})

	t.Run("existing signature date kept", func(t *testing.T) {
		earlier := testClock.Add(-24 * time.Hour)
		d := Deal{Status: StatusViewed, SignatureDate: &earlier}
		require.NoError(t, ManualStatus(&d, StatusAccepted, testClock))
		assert.True(t, d.SignatureDate.Equal(earlier))
	})

	t.Run("reject expire convert", func(t *testing.T) {
		for _, target := range []Status{StatusRejected, StatusExpired, StatusConverted} {
			d := Deal{Status: StatusSent}
			require.NoError(t, ManualStatus(&d, target, testClock))
			assert.Equal(t, target, d.Status)
			assert.Nil(t, d.SignatureDate)
		}
	})

	t.Run("open states are not targets", func(t *testing.T) {
		for _, target := range []Status{StatusDraft, StatusSent, StatusViewed} {
			d := Deal{Status: StatusDraft}
			require.ErrorIs(t, ManualStatus(&d, target, testClock), ErrInvalidTransition)
		}
	})

	t.Run("terminal states are closed", func(t *testing.T) {
		for _, status := range []Status{StatusAccepted, StatusRejected, StatusExpired, StatusConverted} {
			d := Deal{Status: status}
			require.ErrorIs(t, ManualStatus(&d, StatusRejected, testClock), ErrInvalidTransition)
			assert.Equal(t, status, d.Status)
		}
	})
}

func TestAttachPDF(t *testing.T) {
	d := Deal{Status: StatusSent}
	require.NoError(t, AttachPDF(&d, " renders/q-1.pdf "))
	require.NotNil(t, d.PDFRef)
	assert.Equal(t, "renders/q-1.pdf", *d.PDFRef)
	assert.Equal(t, StatusSent, d.Status, "attaching a pdf must not move the lifecycle")

	err := AttachPDF(&d, "   ")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidTransition))
}
