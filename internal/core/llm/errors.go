package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/markdave123-py/fincontexta/internal/core"
)

// wrapGeminiError attaches an upstream classification to a failed Gemini call.
// Blocked responses become core.ErrContentBlocked.
func wrapGeminiError(op string, err error) error {
	if err == nil {
		return nil
	}
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return fmt.Errorf("%s: %w: %s", op, core.ErrContentBlocked, blocked.Error())
	}

	kind := core.UpstreamUnknown
	var retryAfter time.Duration

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.ResourceExhausted:
			kind = core.UpstreamTransient
			if quotaSpent(st) {
				kind = core.UpstreamQuotaExhausted
			}
		case codes.Unavailable:
			kind = core.UpstreamTransient
		case codes.Unauthenticated, codes.PermissionDenied:
			kind = core.UpstreamAuth
		}
		for _, d := range st.Details() {
			if ri, ok := d.(*errdetails.RetryInfo); ok && ri.GetRetryDelay() != nil {
				retryAfter = ri.GetRetryDelay().AsDuration()
			}
		}
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusTooManyRequests:
			kind = core.UpstreamTransient
			if core.KindFromText(gerr.Message) == core.UpstreamQuotaExhausted && dailyLimit(gerr.Message) {
				kind = core.UpstreamQuotaExhausted
			}
		case http.StatusServiceUnavailable:
			kind = core.UpstreamTransient
		case http.StatusUnauthorized, http.StatusForbidden:
			kind = core.UpstreamAuth
		}
		if secs, perr := strconv.Atoi(gerr.Header.Get("Retry-After")); perr == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
	}

	if kind == core.UpstreamUnknown {
		kind = core.KindFromText(err.Error())
	}
	return &core.UpstreamError{Kind: kind, RetryAfter: retryAfter, Err: fmt.Errorf("%s: %w", op, err)}
}

// quotaSpent tells a spent usage quota apart from per-minute throttling,
// which shares the RESOURCE_EXHAUSTED code.
func quotaSpent(st *status.Status) bool {
	if dailyLimit(st.Message()) {
		return true
	}
	for _, d := range st.Details() {
		qf, ok := d.(*errdetails.QuotaFailure)
		if !ok {
			continue
		}
		for _, v := range qf.GetViolations() {
			if dailyLimit(v.String()) {
				return true
			}
		}
	}
	return false
}

func dailyLimit(s string) bool {
	m := strings.ToLower(s)
	return strings.Contains(m, "perday") || strings.Contains(m, "per day") ||
		strings.Contains(m, "daily") || strings.Contains(m, "billing")
}
