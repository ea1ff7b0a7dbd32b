package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"gorm.io/gorm"

	"github.com/restreamarr/restreamarr/internal/models"
	"github.com/restreamarr/restreamarr/internal/repository"
)

// UserAgentHandler handles stored user agent API endpoints.
type UserAgentHandler struct {
	agents repository.UserAgentRepository
}

// NewUserAgentHandler creates a new user agent handler.
func NewUserAgentHandler(agents repository.UserAgentRepository) *UserAgentHandler {
	return &UserAgentHandler{agents: agents}
}

// UserAgentResponse is the read representation of a stored user agent.
type UserAgentResponse struct {
	ID        uint      `json:"id"`
	Nickname  string    `json:"nickname"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
}

// Register registers the user agent routes with the API.
func (h *UserAgentHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listUserAgents",
		Method:      "GET",
		Path:        "/api/v1/user-agents",
		Summary:     "List stored user agents",
		Tags:        []string{"User Agents"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID:   "createUserAgent",
		Method:        "POST",
		Path:          "/api/v1/user-agents",
		Summary:       "Store a user agent",
		Tags:          []string{"User Agents"},
		DefaultStatus: 201,
	}, h.Create)

	huma.Register(api, huma.Operation{
		OperationID: "deleteUserAgent",
		Method:      "DELETE",
		Path:        "/api/v1/user-agents/{id}",
		Summary:     "Delete a stored user agent",
		Tags:        []string{"User Agents"},
	}, h.Delete)
}

// ListUserAgentsInput is the input for listing user agents.
type ListUserAgentsInput struct{}

// ListUserAgentsOutput is the output for listing user agents.
type ListUserAgentsOutput struct {
	Body struct {
		Items []UserAgentResponse `json:"items"`
		Total int                 `json:"total"`
	}
}

// List returns all stored user agents.
func (h *UserAgentHandler) List(ctx context.Context, input *ListUserAgentsInput) (*ListUserAgentsOutput, error) {
	agents, err := h.agents.List(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list user agents", err)
	}

	resp := &ListUserAgentsOutput{}
	resp.Body.Items = make([]UserAgentResponse, 0, len(agents))
	for _, ua := range agents {
		resp.Body.Items = append(resp.Body.Items, UserAgentResponse{
			ID:        ua.ID,
			Nickname:  ua.Nickname,
			UserAgent: ua.UserAgent,
			CreatedAt: ua.CreatedAt,
		})
	}
	resp.Body.Total = len(agents)
	return resp, nil
}

// CreateUserAgentInput is the input for storing a user agent.
type CreateUserAgentInput struct {
	Body struct {
		Nickname  string `json:"nickname" doc:"Unique short name"`
		UserAgent string `json:"user_agent" doc:"Full User-Agent header value"`
	}
}

// CreateUserAgentOutput is the output for storing a user agent.
type CreateUserAgentOutput struct {
	Body UserAgentResponse
}

// Create stores a user agent under a unique nickname.
func (h *UserAgentHandler) Create(ctx context.Context, input *CreateUserAgentInput) (*CreateUserAgentOutput, error) {
	ua := &models.UserAgent{
		Nickname:  input.Body.Nickname,
		UserAgent: input.Body.UserAgent,
	}
	if err := ua.Validate(); err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}

	existing, err := h.agents.GetByNickname(ctx, ua.Nickname)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to check nickname", err)
	}
	if existing != nil {
		return nil, huma.Error409Conflict(fmt.Sprintf("nickname %q already exists", ua.Nickname))
	}

	if err := h.agents.Create(ctx, ua); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, huma.Error409Conflict(fmt.Sprintf("nickname %q already exists", ua.Nickname))
		}
		return nil, huma.Error500InternalServerError("failed to store user agent", err)
	}

	return &CreateUserAgentOutput{Body: UserAgentResponse{
		ID:        ua.ID,
		Nickname:  ua.Nickname,
		UserAgent: ua.UserAgent,
		CreatedAt: ua.CreatedAt,
	}}, nil
}

// DeleteUserAgentInput is the input for deleting a user agent.
type DeleteUserAgentInput struct {
	ID uint `path:"id"`
}

// DeleteUserAgentOutput is the output for deleting a user agent.
type DeleteUserAgentOutput struct {
	Body struct {
		Deleted bool `json:"deleted"`
	}
}

// Delete removes a stored user agent.
func (h *UserAgentHandler) Delete(ctx context.Context, input *DeleteUserAgentInput) (*DeleteUserAgentOutput, error) {
	if err := h.agents.Delete(ctx, input.ID); err != nil {
		return nil, huma.Error500InternalServerError("failed to delete user agent", err)
	}

	resp := &DeleteUserAgentOutput{}
	resp.Body.Deleted = true
	return resp, nil
}
