package db

import (
	"encoding/json"
	"time"
)

// Notification is the durable record of a delivered (or attempted) alert
type Notification struct {
	ID          int64           `json:"id"`
	OwnerUserID *int64          `json:"owner_user_id,omitempty"`
	ModuleID    *int64          `json:"module_id,omitempty"`
	Type        string          `json:"type"`
	Title       string          `json:"title"`
	Message     string          `json:"message"`
	Data        json.RawMessage `json:"data"`
	State       string          `json:"state"`
	CreatedAt   time.Time       `json:"created_at"`
	ReadAt      *time.Time      `json:"read_at,omitempty"`
}

// State constants
const (
	StateUnread = "unread"
	StateRead   = "read"
)

// Notification type tags. The set is open; these are the ones the pipeline produces
// or scopes on.
const (
	TypeFarm               = "farm"
	TypeSensorAlert        = "sensor_alert"
	TypePowerAlert         = "power_alert"
	TypeModuleAlert        = "module_alert"
	TypeSensorReading      = "sensor_reading"
	TypeModuleNotification = "module_notification"
)

// AlertTypes are the notification types a monitor can see through module assignment.
var AlertTypes = []string{
	TypeModuleAlert,
	TypeSensorReading,
	TypeModuleNotification,
	TypeSensorAlert,
}

// Role constants
const (
	RoleAdmin   = "admin"
	RoleOwner   = "owner"
	RoleMonitor = "monitor"
)

// Threshold kinds
const (
	ThresholdMin = "min"
	ThresholdMax = "max"
)

type User struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Email       string  `json:"email"`
	Role        string  `json:"role"`
	Active      bool    `json:"active"`
	DeviceToken *string `json:"-"`
}

// Token returns the registered device token or an empty string
func (u *User) Token() string {
	if u == nil || u.DeviceToken == nil {
		return ""
	}
	return *u.DeviceToken
}

type Farm struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	CreatedBy int64  `json:"created_by"`
}

type Module struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	FarmID    int64  `json:"farm_id"`
	CreatedBy int64  `json:"created_by"`
}

// ModuleDetails is a module joined with its farm and the creating user (the owner)
type ModuleDetails struct {
	Module Module `json:"module"`
	Farm   Farm   `json:"farm"`
	Owner  *User  `json:"owner,omitempty"`
}

// ModuleUserLink is an active module<->monitor assignment with the linked user loaded
type ModuleUserLink struct {
	ModuleID int64 `json:"module_id"`
	UserID   int64 `json:"user_id"`
	Active   bool  `json:"active"`
	User     User  `json:"user"`
}

type Sensor struct {
	ID       int64  `json:"id"`
	ModuleID int64  `json:"module_id"`
	Type     string `json:"type"`
	Name     string `json:"name"`
}

type Threshold struct {
	ID       int64   `json:"id"`
	SensorID int64   `json:"sensor_id"`
	Kind     string  `json:"kind"`
	Value    float64 `json:"value"`
	Active   bool    `json:"active"`
}

type Measurement struct {
	ID         int64     `json:"id"`
	SensorID   int64     `json:"sensor_id"`
	Value      float64   `json:"value"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Scope describes which notifications a user may see.
// Owned notifications are always visible; alert-typed notifications are
// additionally visible when they reference one of ModuleIDs.
type Scope struct {
	OwnerID    int64
	ModuleIDs  []int64
	AlertTypes []string
}

// Matches reports whether n is visible under the scope
func (s Scope) Matches(n *Notification) bool {
	if n.OwnerUserID != nil && *n.OwnerUserID == s.OwnerID {
		return true
	}
	if len(s.ModuleIDs) == 0 || !containsString(s.AlertTypes, n.Type) {
		return false
	}

	moduleID, ok := n.referencedModule()
	if !ok {
		return false
	}
	for _, id := range s.ModuleIDs {
		if id == moduleID {
			return true
		}
	}
	return false
}

// referencedModule prefers the explicit module_id column and falls back to
// the legacy moduleId key inside data.
func (n *Notification) referencedModule() (int64, bool) {
	if n.ModuleID != nil {
		return *n.ModuleID, true
	}
	if len(n.Data) == 0 {
		return 0, false
	}
	var legacy struct {
		ModuleID json.Number `json:"moduleId"`
	}
	if err := json.Unmarshal(n.Data, &legacy); err != nil || legacy.ModuleID == "" {
		return 0, false
	}
	id, err := legacy.ModuleID.Int64()
	if err != nil {
		return 0, false
	}
	return id, true
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
