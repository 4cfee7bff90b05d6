package core

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrContentBlocked is returned when a model refuses to answer for safety reasons.
	ErrContentBlocked = errors.New("content blocked by safety filters")
	// ErrEmptyResponse is returned when a model answered with nothing usable.
	ErrEmptyResponse = errors.New("empty model response")
)

// UpstreamKind is the coarse class of a failed call to an external AI service.
type UpstreamKind int

const (
	UpstreamUnknown UpstreamKind = iota
	// UpstreamQuotaExhausted means the usage quota is spent; retrying soon will not help.
	UpstreamQuotaExhausted
	// UpstreamTransient covers rate limiting and temporary unavailability.
	UpstreamTransient
	UpstreamAuth
)

func (k UpstreamKind) String() string {
	switch k {
	case UpstreamQuotaExhausted:
		return "quota_exhausted"
	case UpstreamTransient:
		return "transient"
	case UpstreamAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// UpstreamError carries the classification of an external call failure.
// RetryAfter is the delay suggested by the server, zero when none was given.
type UpstreamError struct {
	Kind       UpstreamKind
	RetryAfter time.Duration
	Err        error
}

func (e *UpstreamError) Error() string { return e.Err.Error() }
func (e *UpstreamError) Unwrap() error { return e.Err }

// KindOf classifies err. Typed UpstreamErrors win; anything else is judged by its text.
func KindOf(err error) UpstreamKind {
	if err == nil {
		return UpstreamUnknown
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return KindFromText(err.Error())
}

// HTTP status codes only count as whole numbers, so ids that merely
// contain the digits do not look like upstream failures.
var (
	transientStatus = regexp.MustCompile(`\b(429|503)\b`)
	authStatus      = regexp.MustCompile(`\b(401|403)\b`)
)

// KindFromText classifies a raw error message.
func KindFromText(msg string) UpstreamKind {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "resource_exhausted"),
		strings.Contains(m, "quota") && (strings.Contains(m, "exceeded") || strings.Contains(m, "exhausted")):
		return UpstreamQuotaExhausted
	case transientStatus.MatchString(m),
		strings.Contains(m, "rate limit"),
		strings.Contains(m, "too many requests"),
		strings.Contains(m, "temporarily unavailable"):
		return UpstreamTransient
	case strings.Contains(m, "api key not valid"),
		strings.Contains(m, "permission_denied"),
		strings.Contains(m, "unauthenticated"),
		authStatus.MatchString(m):
		return UpstreamAuth
	}
	return UpstreamUnknown
}

func IsQuotaExhausted(err error) bool { return KindOf(err) == UpstreamQuotaExhausted }

func IsTransient(err error) bool { return KindOf(err) == UpstreamTransient }

var retryDelayPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)retry in ([0-9]+(?:\.[0-9]+)?)\s*s`),
	regexp.MustCompile(`(?i)"?retryDelay"?\s*[:=]\s*"?([0-9]+(?:\.[0-9]+)?)s`),
	regexp.MustCompile(`(?i)retry-after:?\s*([0-9]+)`),
}

// SuggestedRetryDelay returns the delay the server asked for, if any.
func SuggestedRetryDelay(err error) time.Duration {
	if err == nil {
		return 0
	}
	var ue *UpstreamError
	if errors.As(err, &ue) && ue.RetryAfter > 0 {
		return ue.RetryAfter
	}
	msg := err.Error()
	for _, re := range retryDelayPatterns {
		if m := re.FindStringSubmatch(msg); m != nil {
			secs, perr := strconv.ParseFloat(m[1], 64)
			if perr == nil && secs > 0 {
				return time.Duration(secs * float64(time.Second))
			}
		}
	}
	return 0
}

// Stage names the pipeline phase an error came from, used for classification.
type Stage string

const (
	StageParsing     Stage = "parsing"
	StageStorage     Stage = "storage"
	StagePersistence Stage = "persistence"
	StageEmbedding   Stage = "embedding"
)

// StageError tags an error with the pipeline stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return string(e.Stage) + ": " + e.Err.Error() }
func (e *StageError) Unwrap() error { return e.Err }

// AtStage wraps err with its stage. A nil err stays nil.
func AtStage(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

// ErrorCode is the user-facing failure code written to a job.
type ErrorCode string

const (
	CodeQuotaExhausted ErrorCode = "quota_exhausted"
	CodeRateLimited    ErrorCode = "rate_limited"
	CodeAuth           ErrorCode = "auth_error"
	CodeFileCorrupted  ErrorCode = "file_corrupted"
	CodeEmbedding      ErrorCode = "embedding_error"
	CodeNetwork        ErrorCode = "network_error"
	CodeDatabase       ErrorCode = "database_error"
	CodeUnknown        ErrorCode = "unknown_error"
)

var failureMessages = map[ErrorCode]string{
	CodeQuotaExhausted: "The AI service quota has been used up. Please try again later.",
	CodeRateLimited:    "The AI service is busy right now. Please try again in a few minutes.",
	CodeAuth:           "The service could not authenticate with an upstream provider. Please contact support.",
	CodeFileCorrupted:  "The file could not be read. Please upload a valid, non-empty PDF.",
	CodeEmbedding:      "The document content could not be indexed. Please try again.",
	CodeNetwork:        "A network problem interrupted processing. Please try again.",
	CodeDatabase:       "The document could not be saved. Please try again later.",
	CodeUnknown:        "An unexpected error occurred while processing the document.",
}

// Failure is the classified, user-safe view of an error.
type Failure struct {
	Code    ErrorCode
	Message string
}

// Retryable reports whether the whole run may succeed if attempted again later.
func (f Failure) Retryable() bool {
	return f.Code == CodeQuotaExhausted || f.Code == CodeRateLimited
}

// Classify maps any error to a Failure. It never panics; an internal fault
// while classifying yields the unknown code.
func Classify(err error) (f Failure) {
	defer func() {
		if r := recover(); r != nil {
			f = newFailure(CodeUnknown)
		}
	}()
	return newFailure(classifyCode(err))
}

func newFailure(code ErrorCode) Failure {
	return Failure{Code: code, Message: failureMessages[code]}
}

func classifyCode(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	if errors.Is(err, ErrInvalidPDF) || errors.Is(err, ErrEmptyPDF) {
		return CodeFileCorrupted
	}
	switch KindOf(err) {
	case UpstreamQuotaExhausted:
		return CodeQuotaExhausted
	case UpstreamTransient:
		return CodeRateLimited
	case UpstreamAuth:
		return CodeAuth
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return CodeNetwork
	}
	if errors.Is(err, context.Canceled) {
		return CodeUnknown
	}

	var se *StageError
	if errors.As(err, &se) {
		switch se.Stage {
		case StageEmbedding:
			return CodeEmbedding
		case StagePersistence, StageStorage:
			return CodeDatabase
		case StageParsing:
			return CodeFileCorrupted
		}
	}
	return codeFromText(err.Error())
}

func codeFromText(msg string) ErrorCode {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "timeout"), strings.Contains(m, "connection refused"),
		strings.Contains(m, "connection reset"), strings.Contains(m, "no such host"):
		return CodeNetwork
	case strings.Contains(m, "corrupt"), strings.Contains(m, "not a pdf"), strings.Contains(m, "no pages"):
		return CodeFileCorrupted
	case strings.Contains(m, "embed"):
		return CodeEmbedding
	case strings.Contains(m, "sqlstate"), strings.Contains(m, "database"), strings.Contains(m, "sql:"):
		return CodeDatabase
	}
	return CodeUnknown
}
