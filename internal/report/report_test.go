package report

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lg/keto-go-api/internal/nutrition"
)

func date(t *testing.T, s string) nutrition.Date {
	t.Helper()
	d, err := nutrition.ParseDate(s)
	require.NoError(t, err)
	return d
}

func ptr(v int) *int { return &v }

func sampleReport(t *testing.T) Report {
	d1, d2 := date(t, "2026-10-01"), date(t, "2026-10-02")
	return Report{
		UserID: 4,
		Start:  d1,
		End:    date(t, "2026-10-03"),
		Entries: []nutrition.FoodEntry{
			{Name: "eggs", Date: d2, Calories: ptr(155), FatG: ptr(10), CarbsG: ptr(1), ProteinG: ptr(12)},
			{Name: "butter", Date: d1, Calories: ptr(717), FatG: ptr(81), CarbsG: ptr(0), ProteinG: ptr(0)},
			{Name: "bacon", Date: d1, Calories: ptr(540), FatG: ptr(42), CarbsG: ptr(1), ProteinG: ptr(37)},
		},
		Aggregates: []nutrition.DailyAggregate{
			{Date: d1, TotalKcal: 1257, TotalFat: 123, TotalCarbs: 1, TotalProtein: 37},
			{Date: d2, TotalKcal: 155, TotalFat: 10, TotalCarbs: 1, TotalProtein: 12},
		},
	}
}

func TestReport_Names(t *testing.T) {
	r := sampleReport(t)
	assert.Equal(t, "Report for dates between 2026-10-01 and 2026-10-03.", r.Title())
	assert.Equal(t, "KetoApp report for dates between 2026-10-01 and 2026-10-03.", r.Subject())
	assert.Equal(t, "report_2026-10-01_2026-10-03.pdf", r.Filename())
	assert.Equal(t, "reports/4/report_2026-10-01_2026-10-03.pdf", r.ArchiveKey())
}

func TestReport_LinesGroupByDay(t *testing.T) {
	lines := sampleReport(t).Lines()
	assert.Equal(t, []string{
		"Report for dates between 2026-10-01 and 2026-10-03.",
		"Product: butter, date: 2026-10-01, kcal: 717, fat: 81, carbs: 0, protein: 0",
		"Product: bacon, date: 2026-10-01, kcal: 540, fat: 42, carbs: 1, protein: 37",
		"Total kcal: 1257, date: 2026-10-01, total fat: 123, total carbs: 1, total protein: 37",
		"Product: eggs, date: 2026-10-02, kcal: 155, fat: 10, carbs: 1, protein: 12",
		"Total kcal: 155, date: 2026-10-02, total fat: 10, total carbs: 1, total protein: 12",
	}, lines)
}

func TestReport_LinesWithoutAggregateSumsEntries(t *testing.T) {
	r := sampleReport(t)
	r.Aggregates = nil
	lines := r.Lines()
	assert.Contains(t, lines, "Total kcal: 1257, date: 2026-10-01, total fat: 123, total carbs: 1, total protein: 37")
}

func TestReport_UnresolvedEntry(t *testing.T) {
	r := Report{Start: date(t, "2026-10-01"), End: date(t, "2026-10-01"),
		Entries: []nutrition.FoodEntry{{Name: "mystery", Date: date(t, "2026-10-01")}}}
	assert.Contains(t, r.Lines(), "Product: mystery, date: 2026-10-01, kcal: n/a, fat: n/a, carbs: n/a, protein: n/a")
}

func TestRenderPDF(t *testing.T) {
	r := sampleReport(t)
	// Enough entries to spill onto a second page.
	for i := 0; i < 60; i++ {
		r.Entries = append(r.Entries, nutrition.FoodEntry{Name: "crème fraîche", Date: r.Start, Calories: ptr(1)})
	}
	pdf, err := RenderPDF(r)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF-")))
	pages := bytes.Count(pdf, []byte("/Type /Page")) - bytes.Count(pdf, []byte("/Type /Pages"))
	assert.GreaterOrEqual(t, pages, 2)
}

/* ─── SendGrid ───────────────────────────────────────────────────────── */

type fakeArchiver struct {
	key string
	pdf []byte
	err error
}

func (f *fakeArchiver) Archive(ctx context.Context, key string, pdf []byte) error {
	f.key, f.pdf = key, pdf
	return f.err
}

func TestSendGridSink_Deliver(t *testing.T) {
	var got map[string]any
	var auth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	arch := &fakeArchiver{}
	sink := &SendGridSink{APIKey: "sg-key", Host: ts.URL, FromName: "KetoApp", FromEmail: "reports@example.com", Archiver: arch}
	r := sampleReport(t)

	require.NoError(t, sink.Deliver(context.Background(), r, "me@example.com"))
	assert.Equal(t, "Bearer sg-key", auth)
	assert.Equal(t, r.Subject(), got["subject"])

	attachments := got["attachments"].([]any)
	require.Len(t, attachments, 1)
	a := attachments[0].(map[string]any)
	assert.Equal(t, "report_2026-10-01_2026-10-03.pdf", a["filename"])
	assert.Equal(t, "application/pdf", a["type"])
	raw, err := base64.StdEncoding.DecodeString(a["content"].(string))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, []byte("%PDF-")))

	assert.Equal(t, r.ArchiveKey(), arch.key)
	assert.Equal(t, raw, arch.pdf)
}

func TestSendGridSink_StatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"errors":[{"message":"sender not verified"}]}`))
	}))
	defer ts.Close()

	arch := &fakeArchiver{}
	sink := &SendGridSink{APIKey: "sg-key", Host: ts.URL, Archiver: arch}
	err := sink.Deliver(context.Background(), sampleReport(t), "me@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Empty(t, arch.key, "nothing is archived when sending failed")
}

func TestSendGridSink_ArchiveFailureIsNotFatal(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	sink := &SendGridSink{APIKey: "sg-key", Host: ts.URL, Archiver: &fakeArchiver{err: errors.New("bucket gone")}}
	assert.NoError(t, sink.Deliver(context.Background(), sampleReport(t), "me@example.com"))
}

func TestSendGridSink_MissingKey(t *testing.T) {
	sink := &SendGridSink{}
	assert.Error(t, sink.Deliver(context.Background(), sampleReport(t), "me@example.com"))
}

/* ─── S3 ─────────────────────────────────────────────────────────────── */

type fakePutObject struct {
	input *s3.PutObjectInput
	body  []byte
}

func (f *fakePutObject) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	f.body, _ = io.ReadAll(params.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Archiver_Archive(t *testing.T) {
	fake := &fakePutObject{}
	a := &S3Archiver{client: fake, bucket: "keto-reports"}

	require.NoError(t, a.Archive(context.Background(), "reports/4/r.pdf", []byte("%PDF-1.3")))
	assert.Equal(t, "keto-reports", *fake.input.Bucket)
	assert.Equal(t, "reports/4/r.pdf", *fake.input.Key)
	assert.Equal(t, "application/pdf", *fake.input.ContentType)
	assert.Equal(t, []byte("%PDF-1.3"), fake.body)
}
