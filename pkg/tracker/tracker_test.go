package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddIsIdempotentPerPath(t *testing.T) {
	s := New()

	assert.True(t, s.Add("/drop/a.pdf", "a.pdf"))
	assert.False(t, s.Add("/drop/a.pdf", "a.pdf"))

	files := s.List()
	require.Len(t, files, 1)
	assert.Equal(t, StatusPending, files[0].Status)
}

func TestListPreservesAdmissionOrder(t *testing.T) {
	s := New()
	s.Add("/drop/b.pdf", "b.pdf")
	s.Add("/drop/a.epub", "a.epub")
	s.Add("/drop/c.pdf", "c.pdf")

	files := s.List()
	require.Len(t, files, 3)
	assert.Equal(t, "b.pdf", files[0].OriginalName)
	assert.Equal(t, "a.epub", files[1].OriginalName)
	assert.Equal(t, "c.pdf", files[2].OriginalName)
}

func TestTransitions(t *testing.T) {
	s := New()
	s.Add("/drop/a.pdf", "a.pdf")

	s.SetStatus("/drop/a.pdf", StatusProcessing)
	f, ok := s.Get("/drop/a.pdf")
	require.True(t, ok)
	assert.Equal(t, StatusProcessing, f.Status)

	s.SetResolved("/drop/a.pdf", "Mystery - Author.pdf")
	f, _ = s.Get("/drop/a.pdf")
	assert.Equal(t, StatusProcessed, f.Status)
	assert.Equal(t, "Mystery - Author.pdf", f.ResolvedName)
}

func TestFailRecordsCause(t *testing.T) {
	s := New()
	s.Add("/drop/a.pdf", "a.pdf")

	s.Fail("/drop/a.pdf", "no identifier found")
	f, _ := s.Get("/drop/a.pdf")
	assert.Equal(t, StatusFailed, f.Status)
	assert.Equal(t, "no identifier found", f.Error)

	// Manual recovery clears the error on re-entry.
	s.SetStatus("/drop/a.pdf", StatusProcessing)
	f, _ = s.Get("/drop/a.pdf")
	assert.Empty(t, f.Error)
}

func TestSubscribeCoalesces(t *testing.T) {
	s := New()
	ch := s.Subscribe()

	s.Add("/drop/a.pdf", "a.pdf")
	s.Add("/drop/b.pdf", "b.pdf")
	s.SetStatus("/drop/a.pdf", StatusProcessing)

	// Multiple mutations without a drain collapse into one pending signal.
	select {
	case <-ch:
	default:
		t.Fatal("expected a pending change signal")
	}
	select {
	case <-ch:
		t.Fatal("expected signals to be coalesced")
	default:
	}
}

func TestUnsubscribeStopsSignals(t *testing.T) {
	s := New()
	ch := s.Subscribe()
	s.Unsubscribe(ch)

	s.Add("/drop/a.pdf", "a.pdf")

	select {
	case <-ch:
		t.Fatal("expected no signal after unsubscribe")
	default:
	}
}

func TestMutationsOnUnknownPathAreNoOps(t *testing.T) {
	s := New()
	s.SetStatus("/nope", StatusProcessing)
	s.Fail("/nope", "x")
	s.SetResolved("/nope", "y")
	assert.Empty(t, s.List())
}
