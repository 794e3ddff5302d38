// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package crm is the HTTP surface of the CRM conversational core. Handlers
// translate between gin and the domain packages; no CRM semantics live here.
package crm

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/AleutianAI/AleutianCRM/services/crm/analyst"
	"github.com/AleutianAI/AleutianCRM/services/crm/chat"
	"github.com/AleutianAI/AleutianCRM/services/crm/providers"
	"github.com/AleutianAI/AleutianCRM/services/crm/tools"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CallerResolver extracts the caller identity from a request. The default
// reads the X-User-ID and X-Team-ID headers set by the gateway; deployments
// with token auth plug in their own resolver.
type CallerResolver interface {
	ResolveCaller(c *gin.Context) tools.Caller
}

// HeaderCallerResolver reads the caller from gateway-set headers.
type HeaderCallerResolver struct{}

// ResolveCaller implements CallerResolver.
func (HeaderCallerResolver) ResolveCaller(c *gin.Context) tools.Caller {
	return tools.Caller{
		UserID: c.GetHeader("X-User-ID"),
		TeamID: c.GetHeader("X-Team-ID"),
	}
}

// Handlers holds the HTTP handlers for the CRM service.
//
// Thread Safety: Safe for concurrent use.
type Handlers struct {
	runner     *chat.Runner
	engine     *analyst.Engine
	dispatcher *tools.Dispatcher
	callers    CallerResolver
}

// NewHandlers creates the handler set. A nil resolver falls back to
// HeaderCallerResolver.
func NewHandlers(runner *chat.Runner, engine *analyst.Engine, dispatcher *tools.Dispatcher, callers CallerResolver) (*Handlers, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner must not be nil")
	}
	if engine == nil {
		return nil, fmt.Errorf("engine must not be nil")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher must not be nil")
	}
	if callers == nil {
		callers = HeaderCallerResolver{}
	}
	return &Handlers{
		runner:     runner,
		engine:     engine,
		dispatcher: dispatcher,
		callers:    callers,
	}, nil
}

// HandleChat handles POST /v1/crm/chat.
//
// Description:
//
//	Runs one conversational turn: intent extraction, optional tool
//	dispatch, chart shaping, and the natural-language summary. Tool-level
//	failures are 200s with isError set — the turn succeeded, the tool did
//	not. Only transport and model failures are 5xx.
//
// Response:
//
//	200 OK: chat.Response
//	400 Bad Request: malformed body
//	502 Bad Gateway: the model call failed
func (h *Handlers) HandleChat(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleChat")

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}

	messages := make([]providers.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, providers.Message{Role: m.Role, Content: m.Content})
	}

	resp, err := h.runner.Run(c.Request.Context(), chat.Request{
		Messages: messages,
		Caller:   h.callers.ResolveCaller(c),
	})
	if err != nil {
		logger.Error("chat turn failed", slog.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error: "chat turn failed",
			Code:  "CHAT_FAILED",
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// HandleAnalytics handles POST /v1/crm/analytics.
//
// Description:
//
//	Answers an analytics question. A free-text question goes through the
//	planner model; a prebuilt plan executes directly. Exactly one of the
//	two must be present.
//
// Response:
//
//	200 OK: analyst.Analysis
//	400 Bad Request: neither question nor plan, or an invalid plan
//	502 Bad Gateway: planning or fetch failed
func (h *Handlers) HandleAnalytics(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleAnalytics")

	var req AnalyticsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}
	if (req.Question == "") == (req.Plan == nil) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "provide exactly one of question or plan",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	caller := h.callers.ResolveCaller(c)
	teamID := caller.TeamID

	var (
		analysis analyst.Analysis
		err      error
	)
	if req.Plan != nil {
		analysis, err = h.engine.Execute(c.Request.Context(), *req.Plan, teamID)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: err.Error(),
				Code:  "INVALID_PLAN",
			})
			return
		}
	} else {
		analysis, err = h.engine.AnalyzeAndFetch(c.Request.Context(), req.Question, teamID)
		if err != nil {
			logger.Error("analytics question failed", slog.String("error", err.Error()))
			c.JSON(http.StatusBadGateway, ErrorResponse{
				Error: "could not answer the question",
				Code:  "ANALYSIS_FAILED",
			})
			return
		}
	}

	c.JSON(http.StatusOK, analysis)
}

// HandleToolCall handles POST /v1/crm/tools/call.
//
// Description:
//
//	Invokes one tool directly, bypassing intent extraction. Used by rich
//	clients that already know which operation to run (e.g. a merge button
//	on a duplicate warning). The dispatcher's Result is returned verbatim.
//
// Response:
//
//	200 OK: tools.Result (IsError marks tool-level failure)
//	400 Bad Request: malformed body
func (h *Handlers) HandleToolCall(c *gin.Context) {
	getOrCreateRequestID(c)

	var req ToolCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}

	result := h.dispatcher.Dispatch(c.Request.Context(), req.Name, req.Args, h.callers.ResolveCaller(c))
	c.JSON(http.StatusOK, result)
}

// HandleGetTools handles GET /v1/crm/tools: the dispatchable tool catalog.
func (h *Handlers) HandleGetTools(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tools": tools.Catalog()})
}

// HandleHealth handles GET /v1/crm/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// HandleReady handles GET /v1/crm/ready. The service is ready as soon as
// its collaborators are constructed; there is no warmup phase.
func (h *Handlers) HandleReady(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// getOrCreateRequestID returns the inbound X-Request-ID, minting one when
// absent, and echoes it on the response.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
