package export

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeSource struct {
	plan Plan
	err  error
}

func (f fakeSource) ExportPlan(context.Context) (Plan, error) {
	return f.plan, f.err
}

type fakeUploader struct {
	uploaded *Result
	err      error
}

func (f *fakeUploader) Upload(_ context.Context, result *Result) (string, error) {
	f.uploaded = result
	if f.err != nil {
		return "", f.err
	}
	return "https://objects.example.com/exports/" + result.Filename, nil
}

func samplePlan() Plan {
	return Plan{
		ID:         "default",
		Title:      "Rivera Parenting Plan",
		PartyAName: "Alex",
		PartyBName: "Blake",
		Completion: 0.5,
		Sections: []Section{
			{ID: "jurisdiction", Title: "Jurisdiction", Content: "First paragraph.\n\nSecond <paragraph>.", Status: "Approved", PartyA: true, PartyB: true, VersionCount: 1},
			{ID: "holidays", Title: "Holidays", Content: "Alternate years.", Status: "NeedsReview", PartyA: true, VersionCount: 3},
		},
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello-World"},
		{"My Plan v1.2", "My-Plan-v12"},
		{"Special!@#$%Chars", "SpecialChars"},
		{"", "parenting-plan"},
		{"Very Long Title That Exceeds Fifty Characters Limit", "Very-Long-Title-That-Exceeds-Fifty-Characters-Limi"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := sanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPageTemplatesCarryPlanDetails(t *testing.T) {
	plan := samplePlan()
	plan.PartyAName = "Alex & Sam"
	header, footer, err := pageTemplates(plan)
	if err != nil {
		t.Fatalf("pageTemplates() error = %v", err)
	}
	for _, want := range []string{"Rivera Parenting Plan", "1 of 2 sections initialled by both parents"} {
		if !strings.Contains(header, want) {
			t.Errorf("header missing %q: %s", want, header)
		}
	}
	for _, want := range []string{"Alex &amp; Sam ______", "Blake ______", `class="pageNumber"`, `class="totalPages"`} {
		if !strings.Contains(footer, want) {
			t.Errorf("footer missing %q: %s", want, footer)
		}
	}
}

func TestHTMLDataURL(t *testing.T) {
	url := htmlDataURL("<p>Holidays ✓</p>")
	encoded, ok := strings.CutPrefix(url, "data:text/html;charset=utf-8;base64,")
	if !ok {
		t.Fatalf("unexpected prefix: %s", url)
	}
	if encoded != "PHA+SG9saWRheXMg4pyTPC9wPg==" {
		t.Fatalf("unexpected payload: %s", encoded)
	}
}

func TestStatusLabel(t *testing.T) {
	cases := map[string]string{
		"Approved":        "Approved",
		"NeedsReview":     "Needs review",
		"MissingInitials": "Missing initials",
		"NotApproved":     "Not approved",
		"":                "",
	}
	for in, want := range cases {
		if got := StatusLabel(in); got != want {
			t.Errorf("StatusLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParagraphs(t *testing.T) {
	got := Paragraphs("one\r\n\r\ntwo\n\n\n\n  three  \n")
	want := []string{"one", "two", "three"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("Paragraphs() = %q, want %q", got, want)
	}
	if len(Paragraphs("   ")) != 0 {
		t.Fatal("blank content should produce no paragraphs")
	}
}

func TestRenderPlanHTML(t *testing.T) {
	html, err := RenderPlanHTML(TemplateData{
		Plan:        samplePlan(),
		GeneratedAt: time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC),
		GeneratedBy: "Alex",
	})
	if err != nil {
		t.Fatalf("RenderPlanHTML() error = %v", err)
	}

	for _, want := range []string{
		"Rivera Parenting Plan",
		"50% of sections approved",
		"by Alex",
		`<span class="status needsreview">Needs review</span>`,
		"<p>First paragraph.</p>",
		"<p>Second &lt;paragraph&gt;.</p>",
		"Blake: ________",
		"version 3",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML missing %q", want)
		}
	}
}

func TestExportHTML(t *testing.T) {
	svc := NewService(fakeSource{plan: samplePlan()}, nil)
	result, err := svc.Export(context.Background(), Request{Format: FormatHTML})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if result.Filename != "Rivera-Parenting-Plan.html" || !strings.HasPrefix(result.MimeType, "text/html") {
		t.Fatalf("unexpected result metadata: %+v", result)
	}
	if !strings.Contains(string(result.Data), "Jurisdiction") {
		t.Fatal("expected section in output")
	}
	if result.URL != "" {
		t.Fatal("did not ask for upload")
	}
}

func TestExportDispatchesRenderersAndUploads(t *testing.T) {
	uploader := &fakeUploader{}
	svc := NewService(fakeSource{plan: Plan{Sections: samplePlan().Sections}}, uploader)
	var gotTitle string
	svc.pdf = func(_ context.Context, doc document) (*Result, error) {
		gotTitle = doc.Plan.Title
		if !strings.Contains(doc.HTML, "Jurisdiction") {
			t.Errorf("renderer got no plan HTML")
		}
		return &Result{Data: []byte("%PDF"), Filename: sanitizeFilename(doc.Plan.Title) + ".pdf", MimeType: "application/pdf"}, nil
	}

	result, err := svc.Export(context.Background(), Request{Format: FormatPDF, Upload: true})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if gotTitle != "Parenting Plan" {
		t.Fatalf("expected default title, got %q", gotTitle)
	}
	if uploader.uploaded != result || result.URL != "https://objects.example.com/exports/Parenting-Plan.pdf" {
		t.Fatalf("unexpected upload: %+v", result)
	}
}

func TestExportErrors(t *testing.T) {
	ctx := context.Background()

	svc := NewService(fakeSource{err: errors.New("db down")}, nil)
	if _, err := svc.Export(ctx, Request{Format: FormatHTML}); err == nil {
		t.Fatal("expected source error")
	}

	svc = NewService(fakeSource{plan: samplePlan()}, nil)
	if _, err := svc.Export(ctx, Request{Format: "odt"}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if _, err := svc.Export(ctx, Request{Format: FormatHTML, Upload: true}); !errors.Is(err, ErrStorageNotConfigured) {
		t.Fatalf("expected ErrStorageNotConfigured, got %v", err)
	}

	svc.docx = func(context.Context, document) (*Result, error) {
		return nil, ErrDOCXDependencyMissing
	}
	if _, err := svc.Export(ctx, Request{Format: FormatDOCX}); !errors.Is(err, ErrDOCXDependencyMissing) {
		t.Fatalf("expected ErrDOCXDependencyMissing, got %v", err)
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat(""); err != nil || f != FormatPDF {
		t.Fatalf("empty format should default to pdf, got %q %v", f, err)
	}
	if f, err := ParseFormat("docx"); err != nil || f != FormatDOCX {
		t.Fatalf("ParseFormat(docx) = %q %v", f, err)
	}
	if _, err := ParseFormat("rtf"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestObjectKey(t *testing.T) {
	at := time.Date(2026, 5, 4, 10, 30, 0, 0, time.FixedZone("X", 3600))
	if got := objectKey(at, "plan.pdf"); got != "exports/20260504T093000Z-plan.pdf" {
		t.Fatalf("objectKey() = %q", got)
	}
}

func TestNewObjectStoreRequiresConfig(t *testing.T) {
	if _, err := NewObjectStore(context.Background(), StorageConfig{}); !errors.Is(err, ErrStorageNotConfigured) {
		t.Fatalf("expected ErrStorageNotConfigured, got %v", err)
	}
}
