// Package export renders completed transcripts into downloadable
// formats, gated by the caller's plan.
package export

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/tealeg/xlsx"
	"go.uber.org/zap"

	"github.com/nak1ro/micro-scribe-sub003/internal/apperr"
	"github.com/nak1ro/micro-scribe-sub003/internal/model"
	"github.com/nak1ro/micro-scribe-sub003/internal/plan"
	"github.com/nak1ro/micro-scribe-sub003/internal/repository"
)

const (
	FormatTxt  = "txt"
	FormatSRT  = "srt"
	FormatVTT  = "vtt"
	FormatXLSX = "xlsx"
)

// File is one rendered export ready to stream to the client.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Service renders transcripts after the plan export guard passes.
type Service struct {
	store  repository.Store
	plans  plan.Resolver
	logger *zap.Logger
}

func NewService(store repository.Store, plans plan.Resolver, logger *zap.Logger) *Service {
	return &Service{store: store, plans: plans, logger: logger.Named("export")}
}

// Export renders the job's transcript in the requested format. Only
// Completed jobs export.
func (s *Service) Export(ctx context.Context, userID, jobID, format string) (*File, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = FormatTxt
	}

	def, err := s.plans.ResolvePlan(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := plan.EnsureExportFormat(def, format); err != nil {
		return nil, err
	}

	job, err := s.store.GetJob(ctx, jobID, userID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, apperr.NotFound("transcription job")
	}
	if job.Status != model.JobCompleted {
		return nil, apperr.Conflict("only completed jobs can be exported")
	}
	segments, err := s.store.GetSegments(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	job.Segments = segments

	var data []byte
	var contentType string
	switch format {
	case FormatTxt:
		data, contentType = renderTxt(job), "text/plain; charset=utf-8"
	case FormatSRT:
		data, contentType = renderSRT(job.Segments), "application/x-subrip"
	case FormatVTT:
		data, contentType = renderVTT(job.Segments), "text/vtt"
	case FormatXLSX:
		data, err = renderXLSX(job.Segments)
		if err != nil {
			return nil, err
		}
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return nil, apperr.Validation("unknown export format " + format)
	}

	return &File{
		Name:        fmt.Sprintf("transcript_%s.%s", job.ID, format),
		ContentType: contentType,
		Data:        data,
	}, nil
}

func renderTxt(job *model.TranscriptionJob) []byte {
	if job.Transcript != "" {
		return []byte(job.Transcript + "\n")
	}
	var b strings.Builder
	for _, seg := range job.Segments {
		b.WriteString(strings.TrimSpace(seg.Text))
		b.WriteString("\n")
	}
	return []byte(b.String())
}

func renderSRT(segments []model.Segment) []byte {
	var b strings.Builder
	for i, seg := range segments {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			i+1,
			srtTimestamp(seg.StartSeconds),
			srtTimestamp(seg.EndSeconds),
			strings.TrimSpace(seg.Text))
	}
	return []byte(b.String())
}

func renderVTT(segments []model.Segment) []byte {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, seg := range segments {
		fmt.Fprintf(&b, "%s --> %s\n%s\n\n",
			vttTimestamp(seg.StartSeconds),
			vttTimestamp(seg.EndSeconds),
			strings.TrimSpace(seg.Text))
	}
	return []byte(b.String())
}

func renderXLSX(segments []model.Segment) ([]byte, error) {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Transcript")
	if err != nil {
		return nil, fmt.Errorf("create worksheet: %w", err)
	}
	header := sheet.AddRow()
	for _, title := range []string{"#", "Start", "End", "Text", "Speaker", "Translation"} {
		header.AddCell().SetString(title)
	}
	for _, seg := range segments {
		row := sheet.AddRow()
		row.AddCell().SetInt(seg.Index + 1)
		row.AddCell().SetString(vttTimestamp(seg.StartSeconds))
		row.AddCell().SetString(vttTimestamp(seg.EndSeconds))
		row.AddCell().SetString(strings.TrimSpace(seg.Text))
		row.AddCell().SetString(seg.Speaker)
		row.AddCell().SetString(seg.Translation)
	}
	var buf bytes.Buffer
	if err := file.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// srtTimestamp formats seconds as HH:MM:SS,mmm.
func srtTimestamp(seconds float64) string {
	h, m, s, ms := splitTime(seconds)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// vttTimestamp formats seconds as HH:MM:SS.mmm.
func vttTimestamp(seconds float64) string {
	h, m, s, ms := splitTime(seconds)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

func splitTime(seconds float64) (h, m, s, ms int) {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	ms = int((seconds - float64(total)) * 1000)
	h = total / 3600
	m = (total % 3600) / 60
	s = total % 60
	return
}
