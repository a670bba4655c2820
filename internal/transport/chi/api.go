package chi

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	"github.com/kailas-cloud/searchstream/internal/domain/entity"
	"github.com/kailas-cloud/searchstream/internal/domain/facet"
	domjob "github.com/kailas-cloud/searchstream/internal/domain/job"
	"github.com/kailas-cloud/searchstream/internal/domain/result"
)

// ErrorCode is a machine-readable error class.
type ErrorCode string

// Error codes returned in ErrorResponse.
const (
	ErrorCodeBadRequest       ErrorCode = "bad_request"
	ErrorCodeUnauthorized     ErrorCode = "unauthorized"
	ErrorCodeInvalidQuery     ErrorCode = "invalid_query"
	ErrorCodeNotFound         ErrorCode = "not_found"
	ErrorCodeJobNotReady      ErrorCode = "job_not_ready"
	ErrorCodeJobFailed        ErrorCode = "job_failed"
	ErrorCodeCapacityExceeded ErrorCode = "capacity_exceeded"
	ErrorCodeRetrievalFailure ErrorCode = "retrieval_failure"
	ErrorCodeInternalError    ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-streamed error.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// SearchResponse is one page of search results. Paging metadata travels in headers.
type SearchResponse struct {
	Results       []entity.Entity   `json:"results"`
	Facets        []facet.Facet     `json:"facets,omitempty"`
	MatchedFields []result.TermInfo `json:"matchedFields,omitempty"`
}

// JobSubmitRequest is the body of POST /v1/idmapping/run.
type JobSubmitRequest struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	IDs  []string `json:"ids"`
}

// JobSubmitResponse carries the id to poll.
type JobSubmitResponse struct {
	JobID string `json:"jobId"`
}

// JobStatusResponse is the public view of a job.
type JobStatusResponse struct {
	JobID        string        `json:"jobId"`
	JobStatus    domjob.Status `json:"jobStatus"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// JobResultsResponse is one page of mapped pairs.
type JobResultsResponse struct {
	Results   []domjob.Pair `json:"results"`
	FailedIDs []string      `json:"failedIds,omitempty"`
}

// HealthResponse reports component health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// SearchParams are the query parameters of GET /v1/{index}/search.
type SearchParams struct {
	Query             *string   `form:"query,omitempty" json:"query,omitempty"`
	Filter            *[]string `form:"filter,omitempty" json:"filter,omitempty"` // field:value, repeatable
	Cursor            *string   `form:"cursor,omitempty" json:"cursor,omitempty"`
	Size              *int      `form:"size,omitempty" json:"size,omitempty"`
	Facets            *[]string `form:"facets,omitempty" json:"facets,omitempty"` // comma separated
	ShowMatchedFields *bool     `form:"showMatchedFields,omitempty" json:"showMatchedFields,omitempty"`
}

// StreamParams are the query parameters of GET /v1/{index}/stream.
type StreamParams struct {
	Query      *string   `form:"query,omitempty" json:"query,omitempty"`
	Filter     *[]string `form:"filter,omitempty" json:"filter,omitempty"`
	Format     *string   `form:"format,omitempty" json:"format,omitempty"`
	Compressed *bool     `form:"compressed,omitempty" json:"compressed,omitempty"`
}

// JobResultsParams are the query parameters of GET /v1/idmapping/results/{jobId}.
type JobResultsParams struct {
	Cursor *string `form:"cursor,omitempty" json:"cursor,omitempty"`
	Size   *int    `form:"size,omitempty" json:"size,omitempty"`
}

// JobStreamParams are the query parameters of GET /v1/idmapping/stream/{jobId}.
type JobStreamParams struct {
	Format     *string `form:"format,omitempty" json:"format,omitempty"`
	Compressed *bool   `form:"compressed,omitempty" json:"compressed,omitempty"`
}

// ServerInterface is implemented by Server.
type ServerInterface interface {
	// (GET /v1/{index}/search)
	SearchEntities(w http.ResponseWriter, r *http.Request, index string, params SearchParams)
	// (GET /v1/{index}/stream)
	StreamEntities(w http.ResponseWriter, r *http.Request, index string, params StreamParams)
	// (POST /v1/idmapping/run)
	SubmitJob(w http.ResponseWriter, r *http.Request)
	// (GET /v1/idmapping/status/{jobId})
	GetJobStatus(w http.ResponseWriter, r *http.Request, jobID string)
	// (GET /v1/idmapping/results/{jobId})
	GetJobResults(w http.ResponseWriter, r *http.Request, jobID string, params JobResultsParams)
	// (GET /v1/idmapping/stream/{jobId})
	StreamJobResults(w http.ResponseWriter, r *http.Request, jobID string, params JobStreamParams)
	// (GET /health)
	HealthCheck(w http.ResponseWriter, r *http.Request)
	// (GET /metrics)
	Metrics(w http.ResponseWriter, r *http.Request)
}

// ChiServerOptions configures HandlerWithOptions.
type ChiServerOptions struct {
	BaseRouter       chi.Router
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// HandlerWithOptions mounts si onto the base router.
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter
	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, _ *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
	wrapper := serverInterfaceWrapper{handler: si, errorHandlerFunc: options.ErrorHandlerFunc}

	r.Get("/health", si.HealthCheck)
	r.Get("/metrics", si.Metrics)
	r.Get("/v1/{index}/search", wrapper.searchEntities)
	r.Get("/v1/{index}/stream", wrapper.streamEntities)
	r.Post("/v1/idmapping/run", si.SubmitJob)
	r.Get("/v1/idmapping/status/{jobId}", wrapper.getJobStatus)
	r.Get("/v1/idmapping/results/{jobId}", wrapper.getJobResults)
	r.Get("/v1/idmapping/stream/{jobId}", wrapper.streamJobResults)
	return r
}

// serverInterfaceWrapper binds path and query parameters before calling the handler.
type serverInterfaceWrapper struct {
	handler          ServerInterface
	errorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

func (s serverInterfaceWrapper) searchEntities(w http.ResponseWriter, r *http.Request) {
	index, ok := s.pathParam(w, r, "index")
	if !ok {
		return
	}
	var params SearchParams
	q := r.URL.Query()
	if !s.bind(w, r, bindQuery("form", true, "query", q, &params.Query),
		bindQuery("form", true, "filter", q, &params.Filter),
		bindQuery("form", true, "cursor", q, &params.Cursor),
		bindQuery("form", true, "size", q, &params.Size),
		bindQuery("form", false, "facets", q, &params.Facets),
		bindQuery("form", true, "showMatchedFields", q, &params.ShowMatchedFields),
	) {
		return
	}
	s.handler.SearchEntities(w, r, index, params)
}

func (s serverInterfaceWrapper) streamEntities(w http.ResponseWriter, r *http.Request) {
	index, ok := s.pathParam(w, r, "index")
	if !ok {
		return
	}
	var params StreamParams
	q := r.URL.Query()
	if !s.bind(w, r, bindQuery("form", true, "query", q, &params.Query),
		bindQuery("form", true, "filter", q, &params.Filter),
		bindQuery("form", true, "format", q, &params.Format),
		bindQuery("form", true, "compressed", q, &params.Compressed),
	) {
		return
	}
	s.handler.StreamEntities(w, r, index, params)
}

func (s serverInterfaceWrapper) getJobStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathParam(w, r, "jobId")
	if !ok {
		return
	}
	s.handler.GetJobStatus(w, r, id)
}

func (s serverInterfaceWrapper) getJobResults(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathParam(w, r, "jobId")
	if !ok {
		return
	}
	var params JobResultsParams
	q := r.URL.Query()
	if !s.bind(w, r, bindQuery("form", true, "cursor", q, &params.Cursor),
		bindQuery("form", true, "size", q, &params.Size),
	) {
		return
	}
	s.handler.GetJobResults(w, r, id, params)
}

func (s serverInterfaceWrapper) streamJobResults(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathParam(w, r, "jobId")
	if !ok {
		return
	}
	var params JobStreamParams
	q := r.URL.Query()
	if !s.bind(w, r, bindQuery("form", true, "format", q, &params.Format),
		bindQuery("form", true, "compressed", q, &params.Compressed),
	) {
		return
	}
	s.handler.StreamJobResults(w, r, id, params)
}

func (s serverInterfaceWrapper) pathParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	var v string
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &v,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		s.errorHandlerFunc(w, r, fmt.Errorf("invalid format for parameter %s: %w", name, err))
		return "", false
	}
	return v, true
}

func (s serverInterfaceWrapper) bind(w http.ResponseWriter, r *http.Request, binders ...func() error) bool {
	for _, b := range binders {
		if err := b(); err != nil {
			s.errorHandlerFunc(w, r, err)
			return false
		}
	}
	return true
}

func bindQuery(style string, explode bool, name string, q url.Values, dest any) func() error {
	return func() error {
		if err := runtime.BindQueryParameter(style, explode, false, name, q, dest); err != nil {
			return fmt.Errorf("invalid format for parameter %s: %w", name, err)
		}
		return nil
	}
}
