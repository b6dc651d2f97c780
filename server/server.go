// Package server provides the HTTP interface for the placement backend.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/http/httputil"
	"net/http/pprof"
	"os"
	"regexp"
	"strings"

	metrics "github.com/Shyp/go-simple-metrics"
	types "github.com/Shyp/go-types"
	"github.com/Shyp/rest"

	"placementd/config"
)

// The maximum body size accepted on any request.
const MAX_REQUEST_BODY_SIZE = 100 * 1024

var disallowUnencryptedRequests = true

// DefaultServer serves every route using the DefaultAuthorizer for
// authentication.
var DefaultServer http.Handler

// GET/POST /v1/jobs
var jobsRoute = regexp.MustCompile(`^/v1/jobs$`)

// GET/PUT/DELETE /v1/jobs/:id
var jobIdRoute = regexp.MustCompile(`^/v1/jobs/(?P<id>job_[^\s\/]+)$`)

// GET /v1/jobs/:id/student-view
var studentViewRoute = regexp.MustCompile(`^/v1/jobs/(?P<id>job_[^\s\/]+)/student-view$`)

// POST /v1/jobs/:id/view
var viewRoute = regexp.MustCompile(`^/v1/jobs/(?P<id>job_[^\s\/]+)/view$`)

// POST /v1/jobs/:id/application-click
var linkClickRoute = regexp.MustCompile(`^/v1/jobs/(?P<id>job_[^\s\/]+)/application-click$`)

// POST /v1/jobs/:id/response
var responseRoute = regexp.MustCompile(`^/v1/jobs/(?P<id>job_[^\s\/]+)/response$`)

// GET /v1/jobs/:id/applications
var applicationsRoute = regexp.MustCompile(`^/v1/jobs/(?P<id>job_[^\s\/]+)/applications$`)

// GET /v1/jobs/:id/analytics
var analyticsRoute = regexp.MustCompile(`^/v1/jobs/(?P<id>job_[^\s\/]+)/analytics$`)

// Get returns a http.Handler with all routes initialized using the given
// Authorizer.
func Get(a Authorizer) http.Handler {
	h := new(RegexpHandler)

	h.Handler(jobsRoute, []string{"GET", "POST"}, authHandler(handleJobsRoute(), a))
	h.Handler(studentViewRoute, []string{"GET"}, authHandler(studentHandler(getStudentView()), a))
	h.Handler(viewRoute, []string{"POST"}, authHandler(studentHandler(recordView()), a))
	h.Handler(linkClickRoute, []string{"POST"}, authHandler(studentHandler(recordLinkClick()), a))
	h.Handler(responseRoute, []string{"POST"}, authHandler(studentHandler(recordResponse()), a))
	h.Handler(applicationsRoute, []string{"GET"}, authHandler(staffHandler(listApplications()), a))
	h.Handler(analyticsRoute, []string{"GET"}, authHandler(staffHandler(getAnalytics()), a))
	h.Handler(jobIdRoute, []string{"GET", "PUT", "DELETE"}, authHandler(handleJobIdRoute(), a))

	h.Handler(regexp.MustCompile("^/debug/pprof$"), []string{"GET"}, authHandler(http.HandlerFunc(pprof.Index), a))
	h.Handler(regexp.MustCompile("^/debug/pprof/cmdline$"), []string{"GET"}, authHandler(http.HandlerFunc(pprof.Cmdline), a))
	h.Handler(regexp.MustCompile("^/debug/pprof/profile$"), []string{"GET"}, authHandler(http.HandlerFunc(pprof.Profile), a))
	h.Handler(regexp.MustCompile("^/debug/pprof/symbol$"), []string{"GET"}, authHandler(http.HandlerFunc(pprof.Symbol), a))
	h.Handler(regexp.MustCompile("^/debug/pprof/trace$"), []string{"GET"}, authHandler(http.HandlerFunc(pprof.Trace), a))

	return debugRequestBodyHandler(
		serverHeaderHandler(
			forbidNonTLSTrafficHandler(h),
		),
	)
}

func init() {
	DefaultServer = Get(DefaultAuthorizer)
	disallowUnencryptedRequests = os.Getenv("ALLOW_UNENCRYPTED_PROXY_TRAFFIC") != "true"
}

type callerKey struct{}

// callerFrom returns the authenticated caller stored on the request by
// authHandler.
func callerFrom(r *http.Request) *Caller {
	c, _ := r.Context().Value(callerKey{}).(*Caller)
	return c
}

func serverHeaderHandler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// hack, figure out how to put middleware on a subset of responses
		if strings.Contains(r.URL.Path, "/debug/pprof") {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		} else {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
		}
		w.Header().Set("Server", fmt.Sprintf("placementd/%s", config.Version))
		h.ServeHTTP(w, r)
	})
}

// forbidNonTLSTrafficHandler returns a 403 to traffic that is sent via a proxy
func forbidNonTLSTrafficHandler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if disallowUnencryptedRequests == true {
			if r.Header.Get("X-Forwarded-Proto") == "http" {
				// It should always be set, but if it's not, let the request
				// through.
				forbidden(w, insecure403(r))
				return
			}
		}
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		h.ServeHTTP(w, r)
	})
}

func authHandler(h http.Handler, a Authorizer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userId, token, ok := r.BasicAuth()
		if !ok {
			authenticate(w, new401(r))
			return
		}
		caller, aerr := a.Authorize(userId, token)
		if aerr != nil {
			metrics.Increment("auth.error")
			handleAuthorizeError(w, r, aerr)
			return
		}
		metrics.Increment("auth.success")
		ctx := context.WithValue(r.Context(), callerKey{}, caller)
		h.ServeHTTP(w, r.WithContext(ctx))
	})
}

// staffHandler rejects callers whose role cannot manage jobs.
func staffHandler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := callerFrom(r)
		if caller == nil || !caller.Role.Staff() {
			role := Role("")
			if caller != nil {
				role = caller.Role
			}
			forbidden(w, roleErr(r, role))
			return
		}
		h.ServeHTTP(w, r)
	})
}

// studentHandler rejects callers that are not students, and validates the
// caller id parses as a student id.
func studentHandler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := callerFrom(r)
		if caller == nil || caller.Role != RoleStudent {
			role := Role("")
			if caller != nil {
				role = caller.Role
			}
			forbidden(w, roleErr(r, role))
			return
		}
		h.ServeHTTP(w, r)
	})
}

// GET/POST disambiguator for /v1/jobs
func handleJobsRoute() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" {
			staffHandler(createJob()).ServeHTTP(w, r)
		} else {
			listJobs().ServeHTTP(w, r)
		}
	}
}

// GET/PUT/DELETE disambiguator for /v1/jobs/:id
func handleJobIdRoute() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case "GET":
			staffHandler(getJob()).ServeHTTP(w, r)
		case "PUT":
			staffHandler(updateJob()).ServeHTTP(w, r)
		case "DELETE":
			staffHandler(deleteJob()).ServeHTTP(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
			writeJSON(w, new405(r))
		}
	}
}

// debugRequestBodyHandler prints all incoming and outgoing HTTP traffic if the
// DEBUG_HTTP_TRAFFIC environment variable is set to true. Note that the output
// will be jumbled if the server is handling multiple requests at the same
// time.
func debugRequestBodyHandler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if os.Getenv("DEBUG_HTTP_TRAFFIC") == "true" {
			// You need to write the entire thing in one Write, otherwise the
			// output will be jumbled with other requests.
			b := new(bytes.Buffer)
			bits, err := httputil.DumpRequest(r, true)
			if err != nil {
				_, _ = b.WriteString(err.Error())
			} else {
				_, _ = b.Write(bits)
			}
			res := httptest.NewRecorder()
			h.ServeHTTP(res, r)

			_, _ = b.WriteString(fmt.Sprintf("HTTP/1.1 %d\r\n", res.Code))
			_ = res.Result().Header.Write(b)
			for k, v := range res.Result().Header {
				w.Header()[k] = v
			}
			w.WriteHeader(res.Code)
			_, _ = b.WriteString("\r\n")
			writer := io.MultiWriter(w, b)
			_, _ = res.Body.WriteTo(writer)
			_, _ = b.WriteTo(os.Stderr)
		} else {
			h.ServeHTTP(w, r)
		}
	})
}

// getId validates that the provided ID is valid, and the prefix matches the
// expected prefix. Returns the correct ID, and a boolean describing whether
// the helper has written a response.
func getId(w http.ResponseWriter, r *http.Request, idStr string, prefix string) (types.PrefixUUID, bool) {
	id, err := types.NewPrefixUUID(idStr)
	if err != nil {
		badRequest(w, r, &rest.Error{
			ID:    "invalid_uuid",
			Title: strings.Replace(err.Error(), "types: ", "", 1),
		})
		return id, true
	}
	if id.Prefix != prefix {
		badRequest(w, r, &rest.Error{
			ID:    "invalid_prefix",
			Title: fmt.Sprintf("Please use %s for the uuid prefix, not %s", prefix, id.Prefix),
		})
		return id, true
	}
	return id, false
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	json.NewEncoder(w).Encode(v)
}
