package handler

import (
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"facilitator-agent/internal/usecase"
)

// NewHTTPRouter serves h over plain net/http for local runs. Each request is
// converted to the API Gateway proxy event the Lambda entry receives.
func NewHTTPRouter(h *Handler) *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Handle("/*", http.HandlerFunc(h.ServeHTTP))
	return router
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// One extra byte lets Handle see that the limit was exceeded.
	body, err := io.ReadAll(io.LimitReader(r.Body, int64(h.maxBodyBytes)+1))
	if err != nil {
		writeProxyResponse(w, invalidBody("unreadable_body", nil, correlationIDFrom(map[string]string{
			headerCorrelationID: r.Header.Get(headerCorrelationID),
		})))
		return
	}

	req := toProxyRequest(r, body)
	resp, err := h.Handle(r.Context(), req)
	if err != nil {
		resp = jsonResponse(http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)}, correlationIDFrom(req.Headers))
	}
	writeProxyResponse(w, resp)
}

func writeProxyResponse(w http.ResponseWriter, resp events.APIGatewayProxyResponse) {
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.WriteString(w, resp.Body)
}

func toProxyRequest(r *http.Request, body []byte) events.APIGatewayProxyRequest {
	headers := make(map[string]string, len(r.Header))
	multi := make(map[string][]string, len(r.Header))
	for k, vs := range r.Header {
		headers[k] = strings.Join(vs, ",")
		multi[k] = vs
	}
	query := make(map[string]string, len(r.URL.Query()))
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			query[k] = vs[0]
		}
	}
	return events.APIGatewayProxyRequest{
		HTTPMethod:            r.Method,
		Path:                  r.URL.Path,
		Headers:               headers,
		MultiValueHeaders:     multi,
		QueryStringParameters: query,
		Body:                  string(body),
		RequestContext: events.APIGatewayProxyRequestContext{
			RequestID: middleware.GetReqID(r.Context()),
			Identity:  events.APIGatewayRequestIdentity{SourceIP: r.RemoteAddr},
		},
	}
}
