package events

import (
	"encoding/json"
	"fmt"
)

// Category groups event kinds for routing and filtering.
type Category string

const (
	CategoryFilesystem Category = "filesystem"
	CategoryDatabase   Category = "database"
	CategoryExternal   Category = "external"
	CategoryMcp        Category = "mcp"
	CategoryService    Category = "service"
	CategorySystem     Category = "system"
	CategoryCustom     Category = "custom"
)

// EventKind is the sealed union of event type variants. Each variant is a
// concrete struct carrying typed fields; the set is closed so routing
// switches are exhaustive.
type EventKind interface {
	// Category returns the routing category for this kind.
	Category() Category

	// BroadcastAllowed reports whether an event of this kind may have an
	// empty target list and be delivered to all registered services.
	BroadcastAllowed() bool

	isEventKind()
}

// FilesystemOp enumerates filesystem event operations.
type FilesystemOp string

const (
	FileCreated      FilesystemOp = "file_created"
	FileModified     FilesystemOp = "file_modified"
	FileDeleted      FilesystemOp = "file_deleted"
	FileMoved        FilesystemOp = "file_moved"
	DirectoryCreated FilesystemOp = "directory_created"
	DirectoryDeleted FilesystemOp = "directory_deleted"
	BatchChange      FilesystemOp = "batch_change"
)

// FilesystemEvent describes a change observed by a filesystem watcher.
type FilesystemEvent struct {
	Op   FilesystemOp `json:"op"`
	Path string       `json:"path,omitempty"`
	// FromPath is set for FileMoved.
	FromPath string `json:"from_path,omitempty"`
	// Changes is set for BatchChange.
	Changes []FilesystemChange `json:"changes,omitempty"`
}

// FilesystemChange is a single entry in a batched filesystem event.
type FilesystemChange struct {
	Path       string `json:"path"`
	ChangeType string `json:"change_type"`
}

func (FilesystemEvent) Category() Category     { return CategoryFilesystem }
func (FilesystemEvent) BroadcastAllowed() bool { return false }
func (FilesystemEvent) isEventKind()           {}

// DatabaseOp enumerates database event operations.
type DatabaseOp string

const (
	RecordCreated         DatabaseOp = "record_created"
	RecordUpdated         DatabaseOp = "record_updated"
	RecordDeleted         DatabaseOp = "record_deleted"
	SchemaChanged         DatabaseOp = "schema_changed"
	TransactionCommitted  DatabaseOp = "transaction_committed"
	TransactionRolledBack DatabaseOp = "transaction_rolled_back"
)

// DatabaseEvent describes a change in a storage adapter.
type DatabaseEvent struct {
	Op       DatabaseOp `json:"op"`
	Table    string     `json:"table,omitempty"`
	RecordID string     `json:"record_id,omitempty"`
}

func (DatabaseEvent) Category() Category     { return CategoryDatabase }
func (DatabaseEvent) BroadcastAllowed() bool { return false }
func (DatabaseEvent) isEventKind()           {}

// ExternalOp enumerates external data event operations.
type ExternalOp string

const (
	DataReceived         ExternalOp = "data_received"
	WebhookTriggered     ExternalOp = "webhook_triggered"
	APICallCompleted     ExternalOp = "api_call_completed"
	NotificationReceived ExternalOp = "notification_received"
)

// ExternalEvent describes data arriving from outside the process.
type ExternalEvent struct {
	Op       ExternalOp `json:"op"`
	Endpoint string     `json:"endpoint,omitempty"`
	Status   int        `json:"status,omitempty"`
}

func (ExternalEvent) Category() Category     { return CategoryExternal }
func (ExternalEvent) BroadcastAllowed() bool { return false }
func (ExternalEvent) isEventKind()           {}

// McpOp enumerates MCP gateway event operations.
type McpOp string

const (
	ToolCall          McpOp = "tool_call"
	ToolResponse      McpOp = "tool_response"
	ToolError         McpOp = "tool_error"
	ResourceRequested McpOp = "resource_requested"
	ResourceProvided  McpOp = "resource_provided"
)

// McpEvent describes Model Context Protocol traffic through the gateway.
type McpEvent struct {
	Op       McpOp  `json:"op"`
	ToolName string `json:"tool_name,omitempty"`
	Resource string `json:"resource,omitempty"`
}

func (McpEvent) Category() Category     { return CategoryMcp }
func (McpEvent) BroadcastAllowed() bool { return false }
func (McpEvent) isEventKind()           {}

// ServiceOp enumerates service coordination event operations.
type ServiceOp string

const (
	ServiceRegistered    ServiceOp = "service_registered"
	ServiceUnregistered  ServiceOp = "service_unregistered"
	HealthCheck          ServiceOp = "health_check"
	ServiceStatusChanged ServiceOp = "service_status_changed"
	RequestReceived      ServiceOp = "request_received"
	ResponseSent         ServiceOp = "response_sent"
)

// ServiceEvent describes service lifecycle and coordination traffic.
type ServiceEvent struct {
	Op        ServiceOp `json:"op"`
	ServiceID string    `json:"service_id,omitempty"`
	// OldStatus and NewStatus are set for ServiceStatusChanged.
	OldStatus string `json:"old_status,omitempty"`
	NewStatus string `json:"new_status,omitempty"`
}

func (ServiceEvent) Category() Category { return CategoryService }

// BroadcastAllowed is true for lifecycle notifications that every service
// may want to observe; request/response traffic requires explicit targets.
func (e ServiceEvent) BroadcastAllowed() bool {
	switch e.Op {
	case ServiceRegistered, ServiceUnregistered, ServiceStatusChanged, HealthCheck:
		return true
	default:
		return false
	}
}

func (ServiceEvent) isEventKind() {}

// SystemOp enumerates system event operations.
type SystemOp string

const (
	DaemonStarted         SystemOp = "daemon_started"
	DaemonStopped         SystemOp = "daemon_stopped"
	ConfigurationReloaded SystemOp = "configuration_reloaded"
	MaintenanceStarted    SystemOp = "maintenance_started"
	MaintenanceCompleted  SystemOp = "maintenance_completed"
)

// SystemEvent describes daemon-level lifecycle events.
type SystemEvent struct {
	Op     SystemOp `json:"op"`
	Detail string   `json:"detail,omitempty"`
}

func (SystemEvent) Category() Category     { return CategorySystem }
func (SystemEvent) BroadcastAllowed() bool { return true }
func (SystemEvent) isEventKind()           {}

// CustomEvent carries an application-defined event name. Custom events
// never broadcast; producers must target them explicitly.
type CustomEvent struct {
	Name string `json:"name"`
}

func (CustomEvent) Category() Category     { return CategoryCustom }
func (CustomEvent) BroadcastAllowed() bool { return false }
func (CustomEvent) isEventKind()           {}

// kindEnvelope is the externally-tagged JSON form of an EventKind:
// {"type": "filesystem", "data": {...}}.
type kindEnvelope struct {
	Type Category        `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func marshalKind(k EventKind) ([]byte, error) {
	if k == nil {
		return nil, fmt.Errorf("event kind is nil")
	}
	data, err := json.Marshal(k)
	if err != nil {
		return nil, err
	}
	return json.Marshal(kindEnvelope{Type: k.Category(), Data: data})
}

func unmarshalKind(data []byte) (EventKind, error) {
	var env kindEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	var k EventKind
	switch env.Type {
	case CategoryFilesystem:
		var v FilesystemEvent
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		k = v
	case CategoryDatabase:
		var v DatabaseEvent
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		k = v
	case CategoryExternal:
		var v ExternalEvent
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		k = v
	case CategoryMcp:
		var v McpEvent
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		k = v
	case CategoryService:
		var v ServiceEvent
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		k = v
	case CategorySystem:
		var v SystemEvent
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		k = v
	case CategoryCustom:
		var v CustomEvent
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		k = v
	default:
		return nil, fmt.Errorf("unknown event kind %q", env.Type)
	}
	return k, nil
}
