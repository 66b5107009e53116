// Package mock provides a mock implementation of the identity Provider
// interface for testing.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/gatewarden/gatewarden/identity"
)

// MockProvider is a configurable identity backend for tests
type MockProvider struct {
	// NameFunc is called when Name() is invoked
	NameFunc func() string

	// UserInfoFunc is called when UserInfo() is invoked
	UserInfoFunc func(ctx context.Context, userID string) (*identity.UserInfo, error)

	// HealthCheckFunc is called when HealthCheck() is invoked
	HealthCheckFunc func(ctx context.Context) error

	// CallCounts tracks how many times each method was called
	CallCounts map[string]int

	// mu protects CallCounts from concurrent access
	mu sync.RWMutex
}

// NewMockProvider creates a mock provider with default implementations
func NewMockProvider() *MockProvider {
	return &MockProvider{
		CallCounts: make(map[string]int),
		NameFunc: func() string {
			return "mock"
		},
		UserInfoFunc: func(ctx context.Context, userID string) (*identity.UserInfo, error) {
			return &identity.UserInfo{
				ID:            userID,
				Email:         "mock@example.com",
				EmailVerified: true,
				Name:          "Mock User",
			}, nil
		},
		HealthCheckFunc: func(ctx context.Context) error {
			return nil
		},
	}
}

// Name returns the backend name
func (m *MockProvider) Name() string {
	// Lock only to update the counter and read the function reference; the
	// user function runs without the lock so it can call other mock methods.
	m.mu.Lock()
	m.CallCounts["Name"]++
	fn := m.NameFunc
	m.mu.Unlock()

	if fn == nil {
		return "mock"
	}
	return fn()
}

// UserInfo returns identity claims for the given user ID
func (m *MockProvider) UserInfo(ctx context.Context, userID string) (*identity.UserInfo, error) {
	m.mu.Lock()
	m.CallCounts["UserInfo"]++
	fn := m.UserInfoFunc
	m.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("UserInfoFunc not configured")
	}
	return fn(ctx, userID)
}

// HealthCheck verifies the backend is reachable
func (m *MockProvider) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	m.CallCounts["HealthCheck"]++
	fn := m.HealthCheckFunc
	m.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// ResetCallCounts resets all call counters
func (m *MockProvider) ResetCallCounts() {
	m.mu.Lock()
	m.CallCounts = make(map[string]int)
	m.mu.Unlock()
}

// GetCallCount returns the number of times a method was called
func (m *MockProvider) GetCallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.CallCounts[method]
}
