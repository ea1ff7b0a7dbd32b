// Package handlers provides HTTP API handlers for restreamarr.
package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/restreamarr/restreamarr/internal/models"
	"github.com/restreamarr/restreamarr/internal/repository"
	"github.com/restreamarr/restreamarr/internal/scheduler"
)

// ChannelHandler handles channel API endpoints.
type ChannelHandler struct {
	channels  repository.ChannelRepository
	scheduler *scheduler.Scheduler
}

// NewChannelHandler creates a new channel handler.
func NewChannelHandler(channels repository.ChannelRepository, sched *scheduler.Scheduler) *ChannelHandler {
	return &ChannelHandler{
		channels:  channels,
		scheduler: sched,
	}
}

// ChannelRequest is the write payload for creating or updating a channel.
type ChannelRequest struct {
	Name                    string `json:"name" doc:"Display name"`
	StreamURL               string `json:"stream_url" doc:"Upstream stream URL"`
	WebsiteURL              string `json:"website_url,omitempty" doc:"Companion website used for credential refresh"`
	IconURL                 string `json:"icon_url,omitempty" doc:"Channel logo URL"`
	UserAgent               string `json:"user_agent,omitempty"`
	Referer                 string `json:"referer,omitempty"`
	Origin                  string `json:"origin,omitempty"`
	AutoUpdateEnabled       bool   `json:"auto_update_enabled,omitempty"`
	AutoUpdateIntervalHours int    `json:"auto_update_interval_hours,omitempty" doc:"Refresh interval, clamped to 1-168 hours"`
}

// ChannelResponse is the read representation of a channel.
type ChannelResponse struct {
	ID                      uint       `json:"id"`
	Name                    string     `json:"name"`
	StreamURL               string     `json:"stream_url"`
	WebsiteURL              string     `json:"website_url,omitempty"`
	IconURL                 string     `json:"icon_url,omitempty"`
	UserAgent               string     `json:"user_agent,omitempty"`
	Referer                 string     `json:"referer,omitempty"`
	Origin                  string     `json:"origin,omitempty"`
	AutoUpdateEnabled       bool       `json:"auto_update_enabled"`
	AutoUpdateIntervalHours int        `json:"auto_update_interval_hours"`
	LastUpdate              *time.Time `json:"last_update,omitempty"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
}

func channelFromModel(ch *models.Channel) ChannelResponse {
	return ChannelResponse{
		ID:                      ch.ID,
		Name:                    ch.Name,
		StreamURL:               ch.StreamURL,
		WebsiteURL:              ch.WebsiteURL,
		IconURL:                 ch.IconURL,
		UserAgent:               ch.UserAgent,
		Referer:                 ch.Referer,
		Origin:                  ch.Origin,
		AutoUpdateEnabled:       ch.AutoUpdateEnabled,
		AutoUpdateIntervalHours: ch.AutoUpdateIntervalHours,
		LastUpdate:              ch.LastUpdate,
		CreatedAt:               ch.CreatedAt,
		UpdatedAt:               ch.UpdatedAt,
	}
}

func (r ChannelRequest) applyTo(ch *models.Channel) {
	creds := models.Credentials{
		UserAgent: r.UserAgent,
		Referer:   r.Referer,
		Origin:    r.Origin,
	}.Sanitized()

	ch.Name = strings.TrimSpace(r.Name)
	ch.StreamURL = strings.TrimSpace(r.StreamURL)
	ch.WebsiteURL = strings.TrimSpace(r.WebsiteURL)
	ch.IconURL = strings.TrimSpace(r.IconURL)
	ch.UserAgent = creds.UserAgent
	ch.Referer = creds.Referer
	ch.Origin = creds.Origin
	ch.AutoUpdateEnabled = r.AutoUpdateEnabled
	ch.AutoUpdateIntervalHours = r.AutoUpdateIntervalHours
	ch.ClampUpdateInterval()
}

// Register registers the channel routes with the API.
func (h *ChannelHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listChannels",
		Method:      "GET",
		Path:        "/api/v1/channels",
		Summary:     "List channels",
		Tags:        []string{"Channels"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "getChannel",
		Method:      "GET",
		Path:        "/api/v1/channels/{id}",
		Summary:     "Get a channel",
		Tags:        []string{"Channels"},
	}, h.Get)

	huma.Register(api, huma.Operation{
		OperationID:   "createChannel",
		Method:        "POST",
		Path:          "/api/v1/channels",
		Summary:       "Create a channel",
		Tags:          []string{"Channels"},
		DefaultStatus: 201,
	}, h.Create)

	huma.Register(api, huma.Operation{
		OperationID: "updateChannel",
		Method:      "PUT",
		Path:        "/api/v1/channels/{id}",
		Summary:     "Update a channel",
		Tags:        []string{"Channels"},
	}, h.Update)

	huma.Register(api, huma.Operation{
		OperationID: "deleteChannel",
		Method:      "DELETE",
		Path:        "/api/v1/channels/{id}",
		Summary:     "Delete a channel",
		Tags:        []string{"Channels"},
	}, h.Delete)

	huma.Register(api, huma.Operation{
		OperationID: "resequenceChannels",
		Method:      "POST",
		Path:        "/api/v1/channels/resequence",
		Summary:     "Resequence channel IDs",
		Description: "Renumbers all channels to consecutive IDs starting at 1, preserving order",
		Tags:        []string{"Channels"},
	}, h.Resequence)

	huma.Register(api, huma.Operation{
		OperationID: "forceUpdateChannels",
		Method:      "POST",
		Path:        "/api/v1/channels/force-update",
		Summary:     "Force credential refresh for all channels",
		Tags:        []string{"Channels"},
	}, h.ForceUpdate)
}

// ListChannelsInput is the input for listing channels.
type ListChannelsInput struct{}

// ListChannelsOutput is the output for listing channels.
type ListChannelsOutput struct {
	Body struct {
		Items []ChannelResponse `json:"items"`
		Total int               `json:"total"`
	}
}

// List returns all channels ordered by ID.
func (h *ChannelHandler) List(ctx context.Context, input *ListChannelsInput) (*ListChannelsOutput, error) {
	channels, err := h.channels.List(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list channels", err)
	}

	resp := &ListChannelsOutput{}
	resp.Body.Items = make([]ChannelResponse, 0, len(channels))
	for _, ch := range channels {
		resp.Body.Items = append(resp.Body.Items, channelFromModel(ch))
	}
	resp.Body.Total = len(channels)
	return resp, nil
}

// GetChannelInput is the input for fetching one channel.
type GetChannelInput struct {
	ID uint `path:"id"`
}

// GetChannelOutput is the output for fetching one channel.
type GetChannelOutput struct {
	Body ChannelResponse
}

// Get returns one channel by ID.
func (h *ChannelHandler) Get(ctx context.Context, input *GetChannelInput) (*GetChannelOutput, error) {
	ch, err := h.channels.GetByID(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load channel", err)
	}
	if ch == nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("channel %d not found", input.ID))
	}
	return &GetChannelOutput{Body: channelFromModel(ch)}, nil
}

// CreateChannelInput is the input for creating a channel.
type CreateChannelInput struct {
	Body ChannelRequest
}

// Create creates a channel.
func (h *ChannelHandler) Create(ctx context.Context, input *CreateChannelInput) (*GetChannelOutput, error) {
	ch := &models.Channel{}
	input.Body.applyTo(ch)
	if err := ch.Validate(); err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}

	if err := h.channels.Create(ctx, ch); err != nil {
		return nil, huma.Error500InternalServerError("failed to create channel", err)
	}
	return &GetChannelOutput{Body: channelFromModel(ch)}, nil
}

// UpdateChannelInput is the input for updating a channel.
type UpdateChannelInput struct {
	ID   uint `path:"id"`
	Body ChannelRequest
}

// Update replaces a channel's fields.
func (h *ChannelHandler) Update(ctx context.Context, input *UpdateChannelInput) (*GetChannelOutput, error) {
	ch, err := h.channels.GetByID(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load channel", err)
	}
	if ch == nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("channel %d not found", input.ID))
	}

	input.Body.applyTo(ch)
	if err := ch.Validate(); err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}

	if err := h.channels.Update(ctx, ch); err != nil {
		return nil, huma.Error500InternalServerError("failed to update channel", err)
	}
	return &GetChannelOutput{Body: channelFromModel(ch)}, nil
}

// DeleteChannelInput is the input for deleting a channel.
type DeleteChannelInput struct {
	ID uint `path:"id"`
}

// DeleteChannelOutput is the output for deleting a channel.
type DeleteChannelOutput struct {
	Body struct {
		Deleted bool `json:"deleted"`
	}
}

// Delete removes a channel.
func (h *ChannelHandler) Delete(ctx context.Context, input *DeleteChannelInput) (*DeleteChannelOutput, error) {
	ch, err := h.channels.GetByID(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load channel", err)
	}
	if ch == nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("channel %d not found", input.ID))
	}

	if err := h.channels.Delete(ctx, input.ID); err != nil {
		return nil, huma.Error500InternalServerError("failed to delete channel", err)
	}

	resp := &DeleteChannelOutput{}
	resp.Body.Deleted = true
	return resp, nil
}

// ResequenceInput is the input for resequencing channels.
type ResequenceInput struct{}

// ResequenceOutput is the output for resequencing channels.
type ResequenceOutput struct {
	Body struct {
		Total int `json:"total"`
	}
}

// Resequence renumbers all channels to consecutive IDs.
func (h *ChannelHandler) Resequence(ctx context.Context, input *ResequenceInput) (*ResequenceOutput, error) {
	if err := h.channels.Resequence(ctx); err != nil {
		return nil, huma.Error500InternalServerError("failed to resequence channels", err)
	}

	channels, err := h.channels.List(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list channels", err)
	}

	resp := &ResequenceOutput{}
	resp.Body.Total = len(channels)
	return resp, nil
}

// ForceUpdateInput is the input for forcing a credential refresh.
type ForceUpdateInput struct{}

// ForceUpdateOutput is the output for forcing a credential refresh.
type ForceUpdateOutput struct {
	Body struct {
		Results []scheduler.UpdateResult `json:"results"`
	}
}

// ForceUpdate refreshes every channel with a companion website.
func (h *ChannelHandler) ForceUpdate(ctx context.Context, input *ForceUpdateInput) (*ForceUpdateOutput, error) {
	results, err := h.scheduler.ForceUpdateAll(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to update channels", err)
	}

	resp := &ForceUpdateOutput{}
	resp.Body.Results = results
	return resp, nil
}
