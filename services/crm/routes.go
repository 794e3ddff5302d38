// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package crm

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all CRM routes with the router.
//
// Description:
//
//	Registers all /v1/crm/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Endpoints:
//
//	POST /v1/crm/chat - Run one conversational turn
//	POST /v1/crm/analytics - Answer an analytics question
//	GET  /v1/crm/tools - Discover available tools
//	POST /v1/crm/tools/call - Invoke a tool directly
//	GET  /v1/crm/health - Health check
//	GET  /v1/crm/ready - Readiness check
//
// Example:
//
//	handlers, _ := crm.NewHandlers(runner, engine, dispatcher, nil)
//
//	v1 := router.Group("/v1")
//	crm.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	crm := rg.Group("/crm")
	{
		// Conversational core
		crm.POST("/chat", handlers.HandleChat)

		// Analytics
		crm.POST("/analytics", handlers.HandleAnalytics)

		// Tool discovery and direct invocation
		crm.GET("/tools", handlers.HandleGetTools)
		crm.POST("/tools/call", handlers.HandleToolCall)

		// Health checks
		crm.GET("/health", handlers.HandleHealth)
		crm.GET("/ready", handlers.HandleReady)
	}
}
