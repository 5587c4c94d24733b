package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestParsePageStrict(t *testing.T) {
	m, repaired, err := ParsePage([]byte(`{"B": 1, "A": {"x": null}}`))
	require.NoError(t, err)
	assert.False(t, repaired)
	assert.Equal(t, []string{"B", "A"}, m.Keys())
}

func TestParsePageRepairsCommonDamage(t *testing.T) {
	raw := "Here you go:\n```json\n{\"Demographics\": {\"name\": \"Jane, Doe\", \"smoker\": False, \"notes\": None,},\n \"Meds\": [\"a\", \"b\",],}\n```"
	m, repaired, err := ParsePage([]byte(raw))
	require.NoError(t, err)
	assert.True(t, repaired)

	demo, ok := m.Get("Demographics")
	require.True(t, ok)
	name, _ := demo.AsMapping().Get("name")
	assert.Equal(t, "Jane, Doe", name.AsString())
	smoker, _ := demo.AsMapping().Get("smoker")
	assert.False(t, smoker.AsBool())
	notes, _ := demo.AsMapping().Get("notes")
	assert.True(t, notes.IsNull())
	meds, _ := m.Get("Meds")
	assert.Len(t, meds.AsList(), 2)
}

func TestParsePageLeavesStringsAlone(t *testing.T) {
	raw := []byte(`{"a": "True, None,]", "b": 1,}`)
	m, _, err := ParsePage(raw)
	require.NoError(t, err)
	a, _ := m.Get("a")
	assert.Equal(t, "True, None,]", a.AsString())
}

func TestParsePageFailures(t *testing.T) {
	_, _, err := ParsePage([]byte("   "))
	assert.ErrorIs(t, err, ErrEmptyAnswer)

	_, _, err = ParsePage([]byte("I could not read this page."))
	assert.Error(t, err)

	_, _, err = ParsePage([]byte(`[1, 2]`))
	assert.Error(t, err)
}

func TestPrompts(t *testing.T) {
	sys := BuildSystemPrompt(`{"type":"object"}`)
	assert.Contains(t, sys, "handwritten")
	assert.Contains(t, sys, `{"type":"object"}`)
	assert.Contains(t, BuildPagePrompt(3), "page 3 of a multi-page form")
}

func TestDataURL(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n0000")
	assert.Equal(t, "data:image/png;base64,iVBORw0KGgowMDAw", DataURL("", png))
	assert.Contains(t, DataURL("image/jpeg", png), "data:image/jpeg;base64,")
	assert.Equal(t, "image/png", DetectMIME("", []byte("plain text")))
}

func TestSendJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "k", r.Header.Get("x-key"))
		if r.URL.Path == "/busy" {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte("slow down"))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	raw, status, err := SendJSON(context.Background(), srv.Client(), srv.URL+"/ok", map[string]any{"a": 1}, map[string]string{"x-key": "k"}, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"ok":true}`, string(raw))

	_, status, err = SendJSON(context.Background(), srv.Client(), srv.URL+"/busy", nil, map[string]string{"x-key": "k"}, quietLogger())
	require.Error(t, err)
	assert.Equal(t, http.StatusTooManyRequests, status)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.True(t, se.Retryable())
	assert.Contains(t, err.Error(), "slow down")
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errors.New("connection reset")))
	assert.True(t, IsRetryable(&StatusError{Status: 503}))
	assert.False(t, IsRetryable(&StatusError{Status: 401}))
	assert.False(t, IsRetryable(nil))
}

type scripted struct {
	answers []string
	errs    []error
	calls   int
}

func (s *scripted) ExtractPage(_ context.Context, _ PageRequest) ([]byte, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return []byte(s.answers[i]), nil
}

func newTestRetrying(next VisionExtractor, attempts int) (*RetryingExtractor, *[]time.Duration) {
	r := NewRetryingExtractor(next, RetryConfig{MaxAttempts: attempts, BaseDelay: time.Second}, quietLogger())
	var waits []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return r, &waits
}

func TestRetryingExtractorBacksOffExponentially(t *testing.T) {
	next := &scripted{
		answers: []string{"", "", `{"ok": 1}`},
		errs:    []error{errors.New("boom"), &StatusError{Status: 500}, nil},
	}
	r, waits := newTestRetrying(next, 3)

	raw, err := r.ExtractPage(context.Background(), PageRequest{Page: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok": 1}`, string(raw))
	assert.Equal(t, 3, next.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *waits)
}

func TestRetryingExtractorRetriesUndecodableAnswers(t *testing.T) {
	next := &scripted{answers: []string{"no json here", `{"a": 1}`}}
	r, _ := newTestRetrying(next, 3)

	_, err := r.ExtractPage(context.Background(), PageRequest{Page: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestRetryingExtractorGivesUp(t *testing.T) {
	next := &scripted{errs: []error{errors.New("a"), errors.New("b"), errors.New("c")}, answers: make([]string, 3)}
	r, _ := newTestRetrying(next, 3)

	_, err := r.ExtractPage(context.Background(), PageRequest{Page: 4})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page 4")
	assert.Equal(t, 3, next.calls)
}

func TestRetryingExtractorStopsOnPermanentError(t *testing.T) {
	next := &scripted{errs: []error{&StatusError{Status: 401}}, answers: make([]string, 3)}
	r, waits := newTestRetrying(next, 3)

	_, err := r.ExtractPage(context.Background(), PageRequest{Page: 1})
	require.Error(t, err)
	assert.Equal(t, 1, next.calls)
	assert.Empty(t, *waits)
}

func TestRetryingExtractorTimesOutAttempts(t *testing.T) {
	slow := VisionExtractorFunc(func(ctx context.Context, _ PageRequest) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	r := NewRetryingExtractor(slow, RetryConfig{MaxAttempts: 2, Timeout: 10 * time.Millisecond}, quietLogger())

	_, err := r.ExtractPage(context.Background(), PageRequest{Page: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
