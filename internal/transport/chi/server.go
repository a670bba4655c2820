package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/searchstream/internal/domain"
	"github.com/kailas-cloud/searchstream/internal/domain/entity"
	domjob "github.com/kailas-cloud/searchstream/internal/domain/job"
	"github.com/kailas-cloud/searchstream/internal/domain/page"
	"github.com/kailas-cloud/searchstream/internal/domain/query"
	"github.com/kailas-cloud/searchstream/internal/logger"
	"github.com/kailas-cloud/searchstream/internal/transport/stream"
	healthuc "github.com/kailas-cloud/searchstream/internal/usecase/health"
	jobuc "github.com/kailas-cloud/searchstream/internal/usecase/job"
	searchuc "github.com/kailas-cloud/searchstream/internal/usecase/search"
)

// Response headers carrying paging metadata.
const (
	HeaderTotalResults = "X-Total-Results"
	HeaderLink         = "Link"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// StreamSettings paces streamed downloads.
type StreamSettings struct {
	FlushEvery int
	LogEvery   int
}

// Server implements ServerInterface.
type Server struct {
	search        *searchuc.Service
	jobs          *jobuc.Engine
	health        *healthuc.Service
	streaming     StreamSettings
	logger        *zap.Logger
	errorHandlers []errorHandler
}

var _ ServerInterface = (*Server)(nil)

// NewServer creates an HTTP API server.
func NewServer(
	search *searchuc.Service,
	jobs *jobuc.Engine,
	health *healthuc.Service,
	streaming StreamSettings,
	logger *zap.Logger,
) *Server {
	s := &Server{
		search:    search,
		jobs:      jobs,
		health:    health,
		streaming: streaming,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, ErrorCodeInvalidQuery),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, ErrorCodeNotFound),
		sentinelHandler(domain.ErrJobNotReady, http.StatusConflict, ErrorCodeJobNotReady),
		sentinelHandler(domain.ErrJobFailed, http.StatusConflict, ErrorCodeJobFailed),
		capacityHandler,
		sentinelHandler(domain.ErrRetrievalFailure, http.StatusBadGateway, ErrorCodeRetrievalFailure),
	}
	return s
}

// SearchEntities handles GET /v1/{index}/search.
func (s *Server) SearchEntities(w http.ResponseWriter, r *http.Request, index string, params SearchParams) {
	filters, err := parseFilters(params.Filter)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	req := searchuc.Request{
		Expression:        deref(params.Query),
		Filters:           filters,
		Facets:            deref(params.Facets),
		ShowMatchedFields: deref(params.ShowMatchedFields),
		Cursor:            deref(params.Cursor),
		Size:              deref(params.Size),
	}
	res, err := s.search.Page(r.Context(), index, req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	if info, ok := res.TakePage(); ok {
		setPageHeaders(w, r, info)
	}
	results := res.Content()
	if results == nil {
		results = []entity.Entity{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{
		Results:       results,
		Facets:        res.Facets(),
		MatchedFields: res.MatchedFields(),
	})
}

// StreamEntities handles GET /v1/{index}/stream.
func (s *Server) StreamEntities(w http.ResponseWriter, r *http.Request, index string, params StreamParams) {
	kind, err := stream.ParseKind(deref(params.Format))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	filters, err := parseFilters(params.Filter)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	req := searchuc.Request{Expression: deref(params.Query), Filters: filters}

	var seq stream.Sequence[entity.Entity]
	if kind == stream.List {
		seq, err = s.search.StreamIDs(r.Context(), index, req)
	} else {
		seq, err = s.search.Stream(r.Context(), index, req)
	}
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	cols := s.search.Columns(index)
	format := stream.Columns[entity.Entity]{
		Header: cols,
		Row:    func(e entity.Entity) []string { return e.Row(cols) },
		ID:     func(e entity.Entity) string { return e.ID },
	}.Format(kind)
	if err := writeStream(w, r, seq, format, deref(params.Compressed), s.streaming, index); err != nil {
		s.handleDomainError(w, r, err)
	}
}

// SubmitJob handles POST /v1/idmapping/run.
func (s *Server) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req JobSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	id, err := s.jobs.Submit(r.Context(), domjob.Request{From: req.From, To: req.To, IDs: req.IDs})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	w.Header().Set("Location", "/v1/idmapping/status/"+id)
	writeJSON(w, http.StatusAccepted, JobSubmitResponse{JobID: id})
}

// GetJobStatus handles GET /v1/idmapping/status/{jobId}.
func (s *Server) GetJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	j, err := s.jobs.Status(r.Context(), jobID)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, JobStatusResponse{
		JobID:        j.ID,
		JobStatus:    j.Status,
		ErrorMessage: j.ErrorMessage,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
	})
}

// GetJobResults handles GET /v1/idmapping/results/{jobId}.
func (s *Server) GetJobResults(w http.ResponseWriter, r *http.Request, jobID string, params JobResultsParams) {
	res, err := s.jobs.Results(r.Context(), jobID, deref(params.Cursor), deref(params.Size))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	if info, ok := res.Page.TakePage(); ok {
		setPageHeaders(w, r, info)
	}
	writeJSON(w, http.StatusOK, JobResultsResponse{
		Results:   res.Page.Content(),
		FailedIDs: res.Failed,
	})
}

// StreamJobResults handles GET /v1/idmapping/stream/{jobId}.
func (s *Server) StreamJobResults(w http.ResponseWriter, r *http.Request, jobID string, params JobStreamParams) {
	kind, err := stream.ParseKind(deref(params.Format))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	seq, err := s.jobs.StreamResults(r.Context(), jobID)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	format := stream.Columns[domjob.Pair]{
		Header: []string{"from", "to"},
		Row:    func(p domjob.Pair) []string { return []string{p.From, p.To} },
		ID:     func(p domjob.Pair) string { return p.To },
	}.Format(kind)
	err = writeStream[domjob.Pair](w, r, seq, format, deref(params.Compressed), s.streaming, "idmapping")
	if err != nil {
		s.handleDomainError(w, r, err)
	}
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, HealthResponse{Status: string(report.Status), Checks: checks})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// writeStream fetches the first item, commits the response headers and drains seq into the body.
// An error on the first fetch is returned with nothing written. Later failures can only be
// reported in-band; Write appends the abort notice and logs them.
func writeStream[T any](
	w http.ResponseWriter, r *http.Request,
	seq stream.Sequence[T], format stream.Format[T],
	compressed bool, settings StreamSettings, name string,
) error {
	seq, err := stream.Prime(r.Context(), seq)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", format.ContentType)
	if compressed {
		w.Header().Set("Content-Encoding", "gzip")
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+"."+extension(format.Kind)))
	w.WriteHeader(http.StatusOK)

	_, _ = stream.Write(r.Context(), seq, stream.NewHTTPChannel(w), format.Encode, format.Options(stream.Options{
		Gzip:       compressed,
		FlushEvery: settings.FlushEvery,
		LogEvery:   settings.LogEvery,
	}))
	return nil
}

func extension(k stream.Kind) string {
	if k == stream.List {
		return "list"
	}
	return string(k)
}

// setPageHeaders exposes the total and, while more pages follow, a Link to the next one.
func setPageHeaders(w http.ResponseWriter, r *http.Request, info page.Info) {
	w.Header().Set(HeaderTotalResults, strconv.FormatInt(info.TotalElements(), 10))
	if !info.HasNext() {
		return
	}
	next := url.URL{Path: r.URL.Path}
	q := r.URL.Query()
	q.Set("cursor", info.NextCursor())
	next.RawQuery = q.Encode()
	w.Header().Set(HeaderLink, fmt.Sprintf("<%s>; rel=\"next\"", next.String()))
}

// parseFilters reads field:value pairs.
func parseFilters(raw *[]string) ([]query.Filter, error) {
	if raw == nil {
		return nil, nil
	}
	out := make([]query.Filter, 0, len(*raw))
	for _, f := range *raw {
		field, value, ok := strings.Cut(f, ":")
		if !ok || field == "" || value == "" {
			return nil, domain.NewInvalidQuery("filter %q must be field:value", f)
		}
		out = append(out, query.Filter{Field: field, Value: value})
	}
	return out, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a client-safe message without exposing backend causes.
// Invalid queries and failed jobs carry details that were written for the client.
func safeDomainMessage(err error) string {
	var iq *domain.InvalidQueryError
	if errors.As(err, &iq) {
		return iq.Error()
	}
	var jf *domain.JobFailedError
	if errors.As(err, &jf) {
		return jf.Error()
	}
	sentinels := []error{
		domain.ErrInvalidQuery,
		domain.ErrNotFound,
		domain.ErrJobNotReady,
		domain.ErrJobFailed,
		domain.ErrCapacityExceeded,
		domain.ErrRetrievalFailure,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// capacityHandler asks clients to come back once the queue drained.
func capacityHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrCapacityExceeded) {
		return false
	}
	w.Header().Set("Retry-After", "5")
	writeError(w, http.StatusServiceUnavailable, ErrorCodeCapacityExceeded, msg)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContextOr(r.Context(), s.logger)
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}
