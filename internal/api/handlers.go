package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

const maxListLimit = 1000

type scrapeJobsResponse struct {
	Message      string             `json:"message"`
	NewJobs      int                `json:"new_jobs"`
	Skipped      int                `json:"skipped"`
	PagesScraped int                `json:"pages_scraped"`
	StopReason   crawler.StopReason `json:"stop_reason"`
	RunID        string             `json:"run_id,omitempty"`
}

type scrapeNewJobsResponse struct {
	Message string `json:"message"`
	NewJobs int    `json:"new_jobs"`
	// Count is the number of stored jobs before the run.
	Count        int                `json:"count"`
	PagesScraped int                `json:"pages_scraped"`
	StopReason   crawler.StopReason `json:"stop_reason"`
	RunID        string             `json:"run_id,omitempty"`
}

type scrapeNewsResponse struct {
	Message     string             `json:"message"`
	NewArticles int                `json:"new_articles"`
	StopReason  crawler.StopReason `json:"stop_reason"`
	RunID       string             `json:"run_id,omitempty"`
}

type listResponse struct {
	Total   int   `json:"total"`
	Offset  int   `json:"offset"`
	Limit   *int  `json:"limit"`
	Results []any `json:"results"`
}

type jobDTO struct {
	ID          int64             `json:"id"`
	KeejobID    *string           `json:"keejob_id"`
	Source      crawler.SourceTag `json:"source"`
	Title       string            `json:"title"`
	Company     string            `json:"company"`
	Location    string            `json:"location"`
	URL         string            `json:"url"`
	Description string            `json:"description"`
	DatePosted  *string           `json:"date_posted"`
}

type newsDTO struct {
	ID        int64             `json:"id"`
	Source    crawler.SourceTag `json:"source"`
	Title     string            `json:"title"`
	URL       string            `json:"url"`
	ScrapedAt *time.Time        `json:"scraped_at"`
}

func (s *Server) scrapeJobs(w http.ResponseWriter, r *http.Request) {
	maxPages, err := optionalInt(r, "max_pages", s.opts.DefaultMaxPages, 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	startPage, err := optionalInt(r, "start_page", 1, 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	report, err := s.scraper.ScrapeJobs(r.Context(), crawler.CrawlOptions{StartPage: startPage, MaxPages: maxPages})
	if err != nil {
		s.scrapeFailed(w, "jobs", err)
		return
	}
	writeJSON(w, http.StatusOK, scrapeJobsResponse{
		Message:      "Scrape completed",
		NewJobs:      report.Inserted,
		Skipped:      report.Skipped,
		PagesScraped: report.Pages,
		StopReason:   report.Stop,
		RunID:        report.RunID,
	})
}

func (s *Server) scrapeNewJobs(w http.ResponseWriter, r *http.Request) {
	startPage, err := optionalInt(r, "start_page", 1, 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	report, err := s.scraper.ScrapeNewJobs(r.Context(), startPage)
	if err != nil {
		s.scrapeFailed(w, "new jobs", err)
		return
	}
	writeJSON(w, http.StatusOK, scrapeNewJobsResponse{
		Message:      "New jobs scraped",
		NewJobs:      report.Inserted,
		Count:        report.StoredBefore,
		PagesScraped: report.Pages,
		StopReason:   report.Stop,
		RunID:        report.RunID,
	})
}

func (s *Server) scrapeNews(w http.ResponseWriter, r *http.Request) {
	report, err := s.scraper.ScrapeNews(r.Context())
	if err != nil {
		s.scrapeFailed(w, "news", err)
		return
	}
	writeJSON(w, http.StatusOK, scrapeNewsResponse{
		Message:     "News scraped",
		NewArticles: report.Inserted,
		StopReason:  report.Stop,
		RunID:       report.RunID,
	})
}

func (s *Server) scrapeFailed(w http.ResponseWriter, what string, err error) {
	s.logger.Error("scrape failed", zap.String("target", what), zap.Error(err))
	status := http.StatusInternalServerError
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, "scrape "+what+" failed")
}

func (s *Server) listRecords(kind crawler.RecordKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit, offset, err := parseLimitOffset(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		query := crawler.ListQuery{
			Kind:         kind,
			Title:        q.Get("title"),
			Organization: q.Get("company"),
			Location:     q.Get("location"),
			Offset:       offset,
		}
		if limit != nil {
			query.Limit = *limit
		}
		records, total, err := s.store.List(r.Context(), query)
		if err != nil {
			s.logger.Error("list records failed", zap.String("kind", string(kind)), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to list records")
			return
		}
		results := make([]any, 0, len(records))
		for _, rec := range records {
			results = append(results, toDTO(rec))
		}
		writeJSON(w, http.StatusOK, listResponse{Total: total, Offset: offset, Limit: limit, Results: results})
	}
}

func (s *Server) getRecord(kind crawler.RecordKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}
		rec, err := s.store.Get(r.Context(), kind, id)
		if errors.Is(err, crawler.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}
		if err != nil {
			s.logger.Error("get record failed", zap.Int64("id", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to fetch record")
			return
		}
		writeJSON(w, http.StatusOK, toDTO(rec))
	}
}

func toDTO(rec crawler.StoredRecord) any {
	if rec.Kind == crawler.KindNews {
		return newsDTO{
			ID:        rec.ID,
			Source:    rec.Source,
			Title:     rec.Title,
			URL:       rec.Identity,
			ScrapedAt: rec.ExtractedAt,
		}
	}
	return jobDTO{
		ID:          rec.ID,
		KeejobID:    rec.ExternalID,
		Source:      rec.Source,
		Title:       rec.Title,
		Company:     rec.Organization,
		Location:    rec.Location,
		URL:         rec.Identity,
		Description: rec.Description,
		DatePosted:  rec.DatePosted,
	}
}

// parseLimitOffset returns a nil limit when the parameter is absent.
func parseLimitOffset(r *http.Request) (*int, int, error) {
	q := r.URL.Query()
	var limit *int
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return nil, 0, errors.New("invalid limit")
		}
		val = min(val, maxListLimit)
		limit = &val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return nil, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func optionalInt(r *http.Request, name string, def, floor int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < floor {
		return 0, errors.New("invalid " + name)
	}
	return val, nil
}
