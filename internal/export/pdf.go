package export

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html/template"
	"os/exec"
	"strings"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// document is a plan rendered to HTML together with the data it came from,
// for renderers that add their own page furniture.
type document struct {
	TemplateData
	HTML string
}

var chromeBinaries = []string{"chromium-browser", "chromium", "google-chrome", "google-chrome-stable"}

func findChrome() (string, error) {
	for _, name := range chromeBinaries {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: chromium not installed", ErrPDFDependencyMissing)
}

// Chrome fills elements with these class names in print header and footer
// templates.
var (
	pdfHeader = template.Must(template.New("header").Parse(
		`<div style="font-size:8px;width:100%;padding:0 0.75in;display:flex;justify-content:space-between;color:#555">` +
			`<span>{{.Title}}</span><span>{{.Approved}} of {{.Total}} sections initialled by both parents</span></div>`))
	pdfFooter = template.Must(template.New("footer").Parse(
		`<div style="font-size:8px;width:100%;padding:0 0.75in;display:flex;justify-content:space-between;color:#555">` +
			`<span>{{.PartyAName}} ______&nbsp;&nbsp;{{.PartyBName}} ______</span>` +
			`<span>Page <span class="pageNumber"></span> of <span class="totalPages"></span></span></div>`))
)

type pageFurniture struct {
	Title      string
	PartyAName string
	PartyBName string
	Approved   int
	Total      int
}

// pageTemplates builds the running header (plan title and approval tally)
// and footer (initial lines for both parents, page numbers).
func pageTemplates(plan Plan) (header, footer string, err error) {
	data := pageFurniture{
		Title:      plan.Title,
		PartyAName: plan.PartyAName,
		PartyBName: plan.PartyBName,
		Total:      len(plan.Sections),
	}
	for _, section := range plan.Sections {
		if section.PartyA && section.PartyB {
			data.Approved++
		}
	}
	var buf bytes.Buffer
	if err := pdfHeader.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("pdf header: %w", err)
	}
	header = buf.String()
	buf.Reset()
	if err := pdfFooter.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("pdf footer: %w", err)
	}
	return header, buf.String(), nil
}

func htmlDataURL(html string) string {
	return "data:text/html;charset=utf-8;base64," + base64.StdEncoding.EncodeToString([]byte(html))
}

// renderPDF prints the plan to Letter-size PDF with headless Chrome.
func renderPDF(parent context.Context, doc document) (*Result, error) {
	chrome, err := findChrome()
	if err != nil {
		return nil, err
	}
	header, footer, err := pageTemplates(doc.Plan)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(parent, exportTimeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(chrome),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	var data []byte
	err = chromedp.Run(taskCtx,
		chromedp.Navigate(htmlDataURL(doc.HTML)),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var printErr error
			data, _, printErr = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(8.5).
				WithPaperHeight(11.0).
				WithMarginTop(0.9).
				WithMarginBottom(0.9).
				WithMarginLeft(0.75).
				WithMarginRight(0.75).
				WithDisplayHeaderFooter(true).
				WithHeaderTemplate(header).
				WithFooterTemplate(footer).
				Do(ctx)
			return printErr
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("print plan %s to pdf: %w", doc.Plan.ID, err)
	}

	return &Result{
		Data:     data,
		Filename: sanitizeFilename(doc.Plan.Title) + ".pdf",
		MimeType: "application/pdf",
	}, nil
}

// sanitizeFilename keeps letters, digits, dashes and underscores, turns
// spaces into dashes and caps the result at 50 characters.
func sanitizeFilename(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('-')
		}
	}
	result := b.String()
	if len(result) > 50 {
		result = result[:50]
	}
	if result == "" {
		result = "parenting-plan"
	}
	return result
}
