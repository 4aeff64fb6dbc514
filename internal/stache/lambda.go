package stache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/stachelabs/stache-go/internal/config"
)

// coldStartThreshold marks invocations slow enough to be logged as likely
// cold starts. Observability only, never a control branch.
const coldStartThreshold = 5 * time.Second

// lambdaInvoker is the slice of the Lambda SDK client the transport uses.
// Tests substitute a fake.
type lambdaInvoker interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// LambdaTransport invokes the Stache Lambda function directly, bypassing API
// Gateway. Requests are wrapped in a synthetic API Gateway v1 event so the
// remote handler sees the same shape either way; responses come back as an
// API Gateway envelope {statusCode, body, headers}.
type LambdaTransport struct {
	cfg     *config.Config
	invoker lambdaInvoker
	logger  *slog.Logger
	retry   retryPolicy

	lastRequestID string
}

// NewLambdaTransport builds the Lambda transport, resolving AWS credentials
// via the default chain (honoring the configured profile and region). The
// SDK's own retry layer is disabled; the shared stache retry policy is the
// single source of backoff behavior.
func NewLambdaTransport(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*LambdaTransport, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWSRegion),
		awsconfig.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
		awsconfig.WithHTTPClient(&http.Client{Timeout: cfg.LambdaTimeout}),
	}
	if cfg.AWSProfile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.AWSProfile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}

	return newLambdaTransport(cfg, lambda.NewFromConfig(awsCfg), logger), nil
}

func newLambdaTransport(cfg *config.Config, invoker lambdaInvoker, logger *slog.Logger) *LambdaTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &LambdaTransport{
		cfg:     cfg,
		invoker: invoker,
		logger:  logger,
		retry:   newRetryPolicy(logger),
	}
}

// gatewayEvent is the synthetic API Gateway v1 (REST API) event the remote
// handler expects.
type gatewayEvent struct {
	HTTPMethod            string            `json:"httpMethod"`
	Path                  string            `json:"path"`
	Body                  *string           `json:"body"`
	Headers               map[string]string `json:"headers"`
	QueryStringParameters map[string]string `json:"queryStringParameters"`
	PathParameters        map[string]string `json:"pathParameters"`
	RequestContext        requestContext    `json:"requestContext"`
}

type requestContext struct {
	Identity  map[string]any `json:"identity"`
	RequestID string         `json:"requestId"`
}

// gatewayResponse is the envelope returned by the remote handler. The body is
// a JSON string, not an object.
type gatewayResponse struct {
	StatusCode int               `json:"statusCode"`
	Body       string            `json:"body"`
	Headers    map[string]string `json:"headers"`
}

// functionError is the payload shape Lambda returns when the function itself
// crashed, as opposed to returning an HTTP-shaped error envelope.
type functionError struct {
	ErrorMessage string `json:"errorMessage"`
	ErrorType    string `json:"errorType"`
}

// LastRequestID returns the request id from the last response body.
func (t *LambdaTransport) LastRequestID() string { return t.lastRequestID }

// Close implements Transport. The SDK client holds no resources that need
// explicit release, but callers treat all transports uniformly.
func (t *LambdaTransport) Close() error { return nil }

// retryable reports whether a failure warrants another attempt: connection
// failures, 429/5xx API errors, and SDK-level throttling codes that may
// escape conversion.
func (t *LambdaTransport) retryable(err error) bool {
	if isConnectionError(err) || isRetryableAPIError(err) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "TooManyRequestsException", "ServiceException", "ServiceUnavailableException":
			return true
		}
	}
	return false
}

func (t *LambdaTransport) Get(ctx context.Context, path string, query url.Values) (Payload, error) {
	return t.roundTrip(ctx, http.MethodGet, path, nil, query)
}

func (t *LambdaTransport) Post(ctx context.Context, path string, body Payload) (Payload, error) {
	return t.roundTrip(ctx, http.MethodPost, path, body, nil)
}

func (t *LambdaTransport) Put(ctx context.Context, path string, body Payload) (Payload, error) {
	return t.roundTrip(ctx, http.MethodPut, path, body, nil)
}

func (t *LambdaTransport) Delete(ctx context.Context, path string, query url.Values) (Payload, error) {
	return t.roundTrip(ctx, http.MethodDelete, path, nil, query)
}

func (t *LambdaTransport) roundTrip(ctx context.Context, method, path string, body Payload, query url.Values) (Payload, error) {
	var result Payload
	err := t.retry.do(ctx, method+" "+path, t.retryable, func() error {
		var attemptErr error
		result, attemptErr = t.invoke(ctx, method, path, body, query)
		return attemptErr
	})
	return result, err
}

func (t *LambdaTransport) buildEvent(method, path string, body Payload, query url.Values) (*gatewayEvent, error) {
	event := &gatewayEvent{
		HTTPMethod: method,
		Path:       path,
		Headers:    map[string]string{"Content-Type": "application/json"},
		RequestContext: requestContext{
			Identity:  map[string]any{},
			RequestID: uuid.NewString(),
		},
	}

	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, newValidationError("encoding request body: %v", err)
		}
		s := string(encoded)
		event.Body = &s
	}

	if len(query) > 0 {
		event.QueryStringParameters = make(map[string]string, len(query))
		for key := range query {
			event.QueryStringParameters[key] = query.Get(key)
		}
	}

	return event, nil
}

// invoke performs a single synchronous invocation and maps the outcome.
func (t *LambdaTransport) invoke(ctx context.Context, method, path string, body Payload, query url.Values) (Payload, error) {
	event, err := t.buildEvent(method, path, body, query)
	if err != nil {
		return nil, err
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return nil, newValidationError("encoding invocation event: %v", err)
	}

	invokeCtx, cancel := context.WithTimeout(ctx, t.cfg.LambdaTimeout)
	defer cancel()

	start := time.Now()
	out, err := t.invoker.Invoke(invokeCtx, &lambda.InvokeInput{
		FunctionName:   aws.String(t.cfg.LambdaFunction),
		InvocationType: types.InvocationTypeRequestResponse,
		Payload:        eventJSON,
	})
	if err != nil {
		return nil, t.classifyInvokeError(err)
	}

	if elapsed := time.Since(start); elapsed > coldStartThreshold {
		t.logger.Info("slow Lambda invocation (possible cold start)",
			"function", t.cfg.LambdaFunction,
			"duration", elapsed)
	}

	// The payload is consumed exactly once here; every branch below works
	// from this one slice.
	payload := out.Payload

	if out.FunctionError != nil {
		var fnErr functionError
		if unmarshalErr := json.Unmarshal(payload, &fnErr); unmarshalErr != nil {
			fnErr = functionError{ErrorMessage: "Unknown Lambda error", ErrorType: "Error"}
		}
		if fnErr.ErrorType == "" {
			fnErr.ErrorType = "Error"
		}
		if fnErr.ErrorMessage == "" {
			fnErr.ErrorMessage = "Unknown Lambda error"
		}
		return nil, newAPIError(
			fmt.Sprintf("Lambda execution error (%s): %s", fnErr.ErrorType, fnErr.ErrorMessage),
			http.StatusInternalServerError, "")
	}

	var envelope gatewayResponse
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, newConnectionError(fmt.Sprintf("malformed Lambda response: %v", err), err)
	}

	return t.handleEnvelope(envelope)
}

// classifyInvokeError distinguishes the three invocation failure classes:
// target not found, access denied, and throttling.
func (t *LambdaTransport) classifyInvokeError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ResourceNotFoundException":
			return newConnectionError(fmt.Sprintf("Lambda function not found: %s", t.cfg.LambdaFunction), err)
		case "AccessDeniedException":
			return newAuthError(fmt.Sprintf(
				"access denied to Lambda function %s: ensure the IAM policy includes lambda:InvokeFunction",
				t.cfg.LambdaFunction), "")
		case "TooManyRequestsException", "ServiceException", "ServiceUnavailableException":
			// Surfaced as a retryable server error; the retry policy will
			// back off before the next attempt.
			return newAPIError(apiErr.ErrorMessage(), http.StatusServiceUnavailable, "")
		}
	}
	return newConnectionError(fmt.Sprintf("Lambda invocation failed: %v", err), err)
}

// handleEnvelope parses the HTTP-shaped envelope, records the request id,
// and maps the status code. A missing statusCode means 200.
func (t *LambdaTransport) handleEnvelope(envelope gatewayResponse) (Payload, error) {
	status := envelope.StatusCode
	if status == 0 {
		status = http.StatusOK
	}

	var parsed Payload
	if envelope.Body != "" {
		_ = json.Unmarshal([]byte(envelope.Body), &parsed)
	}

	t.lastRequestID = requestID(parsed)

	if status >= 400 {
		fallback := envelope.Body
		if fallback == "" {
			fallback = fmt.Sprintf("HTTP %d", status)
		}
		return nil, errorForStatus(status, errorMessage(parsed, fallback), t.lastRequestID)
	}

	if parsed == nil {
		parsed = Payload{}
	}
	return parsed, nil
}

var _ Transport = (*LambdaTransport)(nil)
