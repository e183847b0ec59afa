package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind_Categories(t *testing.T) {
	assert.Equal(t, CategoryFilesystem, FilesystemEvent{}.Category())
	assert.Equal(t, CategoryDatabase, DatabaseEvent{}.Category())
	assert.Equal(t, CategoryExternal, ExternalEvent{}.Category())
	assert.Equal(t, CategoryMcp, McpEvent{}.Category())
	assert.Equal(t, CategoryService, ServiceEvent{}.Category())
	assert.Equal(t, CategorySystem, SystemEvent{}.Category())
	assert.Equal(t, CategoryCustom, CustomEvent{}.Category())
}

func TestKind_BroadcastRules(t *testing.T) {
	// Only system events and service lifecycle notifications broadcast.
	assert.True(t, SystemEvent{Op: DaemonStarted}.BroadcastAllowed())
	assert.True(t, ServiceEvent{Op: ServiceRegistered}.BroadcastAllowed())
	assert.True(t, ServiceEvent{Op: ServiceUnregistered}.BroadcastAllowed())
	assert.True(t, ServiceEvent{Op: ServiceStatusChanged}.BroadcastAllowed())
	assert.True(t, ServiceEvent{Op: HealthCheck}.BroadcastAllowed())

	assert.False(t, ServiceEvent{Op: RequestReceived}.BroadcastAllowed())
	assert.False(t, ServiceEvent{Op: ResponseSent}.BroadcastAllowed())
	assert.False(t, FilesystemEvent{Op: FileCreated}.BroadcastAllowed())
	assert.False(t, DatabaseEvent{Op: RecordCreated}.BroadcastAllowed())
	assert.False(t, ExternalEvent{Op: WebhookTriggered}.BroadcastAllowed())
	assert.False(t, McpEvent{Op: ToolCall}.BroadcastAllowed())
	assert.False(t, CustomEvent{Name: "x"}.BroadcastAllowed())
}
