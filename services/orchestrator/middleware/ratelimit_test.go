// Copyright (C) 2025 SmartBot Labs (eng@smartbot-labs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newLimitedRouter(t *testing.T, rl *RateLimiter) *gin.Engine {
	t.Helper()
	t.Cleanup(rl.Close)
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(rl))
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	return router
}

func get(router *gin.Engine, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("requests beyond the burst are rejected with 429", func(t *testing.T) {
		// Negligible refill rate: only the burst of 2 passes.
		router := newLimitedRouter(t, NewRateLimiter(0.001, 2))

		assert.Equal(t, http.StatusOK, get(router, "10.0.0.1:1234").Code)
		assert.Equal(t, http.StatusOK, get(router, "10.0.0.1:1234").Code)

		rec := get(router, "10.0.0.1:1234")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	})

	t.Run("clients are limited independently", func(t *testing.T) {
		router := newLimitedRouter(t, NewRateLimiter(0.001, 1))

		assert.Equal(t, http.StatusOK, get(router, "10.0.0.1:1234").Code)
		assert.Equal(t, http.StatusTooManyRequests, get(router, "10.0.0.1:1234").Code)
		assert.Equal(t, http.StatusOK, get(router, "10.0.0.2:1234").Code)
	})
}

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	t.Cleanup(rl.Close)

	assert.True(t, rl.Allow("k"))
	assert.False(t, rl.Allow("k"))
	assert.True(t, rl.Allow("other"))
}

func TestRateLimiterClose(t *testing.T) {
	before := runtime.NumGoroutine()
	limiters := make([]*RateLimiter, 20)
	for i := range limiters {
		limiters[i] = NewRateLimiter(1, 1)
	}
	for _, rl := range limiters {
		rl.Close()
	}

	// Eviction goroutines exit promptly once closed; Allow keeps working
	// for requests already in flight.
	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+2
	}, time.Second, 10*time.Millisecond)
	assert.True(t, limiters[0].Allow("k"))
}
