package llm

import (
	"context"
	"errors"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/richinex/llmchain/model"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// transportError classifies an SDK failure. Parent-context cancellation is
// Cancelled; everything else is a TransportFailure whose retryability depends
// on the HTTP status when one is known.
func transportError(ctx context.Context, err error, backend, modelID, op string) error {
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
		return model.Wrap(model.KindCancelled, err, "%s request", op).WithBackend(backend, modelID)
	}
	e := model.Wrap(model.KindTransport, err, "%s request", op).WithBackend(backend, modelID)
	e.Retryable = retryableStatus(statusCode(err))
	return e
}

func translationError(err error, backend, modelID string) error {
	if e, ok := model.AsError(err); ok {
		return e.WithBackend(backend, modelID)
	}
	return model.Wrap(model.KindTranslation, err, "translate request").WithBackend(backend, modelID)
}

func statusCode(err error) int {
	var oaiAPI *openai.APIError
	if errors.As(err, &oaiAPI) {
		return oaiAPI.HTTPStatusCode
	}
	var oaiReq *openai.RequestError
	if errors.As(err, &oaiReq) {
		return oaiReq.HTTPStatusCode
	}
	var antErr *anthropic.Error
	if errors.As(err, &antErr) {
		return antErr.StatusCode
	}
	var genErr genai.APIError
	if errors.As(err, &genErr) {
		return genErr.Code
	}
	var awsErr *awshttp.ResponseError
	if errors.As(err, &awsErr) {
		return awsErr.HTTPStatusCode()
	}
	return 0
}

// retryableStatus treats unknown status (network errors, timeouts), 408, 429
// and 5xx as retryable.
func retryableStatus(code int) bool {
	switch {
	case code == 0:
		return true
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	case code >= 500:
		return true
	default:
		return false
	}
}
