package export

import (
	"context"
	"fmt"
	"time"
)

// PlanSource supplies the current plan for export.
type PlanSource interface {
	ExportPlan(ctx context.Context) (Plan, error)
}

type renderFunc func(ctx context.Context, doc document) (*Result, error)

// Service provides plan export functionality
type Service struct {
	source   PlanSource
	uploader Uploader
	now      func() time.Time
	pdf      renderFunc
	docx     renderFunc
}

// NewService creates an export service. uploader may be nil when object
// storage is not configured.
func NewService(source PlanSource, uploader Uploader) *Service {
	return &Service{
		source:   source,
		uploader: uploader,
		now:      time.Now,
		pdf:      renderPDF,
		docx:     renderDOCX,
	}
}

// CanUpload reports whether exports can be pushed to object storage.
func (s *Service) CanUpload() bool {
	return s.uploader != nil
}

// Export renders the plan in the requested format and, when asked, uploads
// the result.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	plan, err := s.source.ExportPlan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}
	if plan.Title == "" {
		plan.Title = "Parenting Plan"
	}

	data := TemplateData{
		Plan:        plan,
		GeneratedAt: s.now(),
		GeneratedBy: req.GeneratedBy,
	}
	html, err := RenderPlanHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	var result *Result
	switch req.Format {
	case FormatHTML:
		result = &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(plan.Title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}
	case FormatPDF:
		result, err = s.pdf(ctx, document{TemplateData: data, HTML: html})
	case FormatDOCX:
		result, err = s.docx(ctx, document{TemplateData: data, HTML: html})
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
	if err != nil {
		return nil, err
	}

	if req.Upload {
		if s.uploader == nil {
			return nil, ErrStorageNotConfigured
		}
		link, err := s.uploader.Upload(ctx, result)
		if err != nil {
			return nil, err
		}
		result.URL = link
	}
	return result, nil
}
