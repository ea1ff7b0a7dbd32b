package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/restreamarr/restreamarr/internal/detect"
)

// DetectHandler handles the stream auto-detection endpoint.
type DetectHandler struct {
	detector detect.Detector
}

// NewDetectHandler creates a new detect handler.
func NewDetectHandler(detector detect.Detector) *DetectHandler {
	return &DetectHandler{detector: detector}
}

// Register registers the detect route with the API.
func (h *DetectHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "autoDetectStream",
		Method:      "POST",
		Path:        "/api/v1/auto-detect",
		Summary:     "Detect a stream URL on a webpage",
		Description: "Scans the page for a playable stream URL and the request headers it needs",
		Tags:        []string{"Detection"},
	}, h.Detect)
}

// DetectInput is the input for stream detection.
type DetectInput struct {
	Body struct {
		URL string `json:"url" doc:"Webpage to scan"`
	}
}

// DetectOutput is the output for stream detection.
type DetectOutput struct {
	Body detect.Result
}

// Detect scans a webpage for a stream URL.
func (h *DetectHandler) Detect(ctx context.Context, input *DetectInput) (*DetectOutput, error) {
	if input.Body.URL == "" {
		return nil, huma.Error400BadRequest("url is required")
	}

	result, err := h.detector.Detect(ctx, input.Body.URL)
	switch {
	case errors.Is(err, detect.ErrTimeout):
		return nil, huma.NewError(http.StatusRequestTimeout, "timed out while searching for a stream URL")
	case errors.Is(err, detect.ErrNoStreamFound):
		return nil, huma.Error404NotFound("no stream URL found on the page")
	case errors.Is(err, detect.ErrRateLimited):
		return nil, huma.Error429TooManyRequests("detection rate limit reached, try again shortly")
	case err != nil:
		return nil, huma.Error500InternalServerError("detection failed", err)
	}

	return &DetectOutput{Body: *result}, nil
}
