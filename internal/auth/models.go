// Package auth declares the user, group, permission and session node types
// and the password and permission helpers built on them.
package auth

import (
	"fmt"
	"time"

	"github.com/armchr/graphogm/internal/ogm"
)

// Type names registered by Register.
const (
	PermissionType = "Permission"
	GroupType      = "Group"
	UserType       = "User"
	SessionType    = "Session"
)

// Models holds the registered auth types.
type Models struct {
	Permission *ogm.NodeType
	Group      *ogm.NodeType
	User       *ogm.NodeType
	Session    *ogm.NodeType
}

func PermissionSchema() ogm.NodeSchema {
	return ogm.NodeSchema{
		Name: PermissionType,
		Properties: []ogm.Property{
			{Name: "codename", Required: true, Unique: true},
			{Name: "description", Required: true},
		},
	}
}

func GroupSchema() ogm.NodeSchema {
	return ogm.NodeSchema{
		Name:       GroupType,
		Properties: []ogm.Property{{Name: "name", Required: true, Unique: true}},
		Relationships: map[string]ogm.RelationshipSchema{
			"permissions": {Type: "CAN", Direction: ogm.From, Target: PermissionType},
			"users":       {Type: "IS_IN", Direction: ogm.To, Start: UserType},
		},
	}
}

func UserSchema() ogm.NodeSchema {
	return ogm.NodeSchema{
		Name: UserType,
		Properties: []ogm.Property{
			{Name: "first_name"},
			{Name: "last_name"},
			{Name: "email", Required: true, Unique: true},
			{Name: "password", Required: true},
			{Name: "is_super_user", Default: false},
			{Name: "is_staff_user", Default: false},
			{Name: "is_active_user", Default: true},
			{Name: "registration_datetime", DefaultFunc: func() any { return time.Now().UTC() }},
		},
		Relationships: map[string]ogm.RelationshipSchema{
			"permissions": {Type: "CAN", Direction: ogm.From, Target: PermissionType},
			"groups":      {Type: "IS_IN", Direction: ogm.From, Target: GroupType},
			"session":     {Type: "IS_SESSION_OF", Direction: ogm.To, Start: SessionType, OnDelete: ogm.Cascade, Unique: true},
		},
	}
}

func SessionSchema() ogm.NodeSchema {
	return ogm.NodeSchema{
		Name: SessionType,
		Properties: []ogm.Property{
			{Name: "session_key", Required: true, Unique: true},
			{Name: "session_data"},
			{Name: "expire_date"},
		},
		Relationships: map[string]ogm.RelationshipSchema{
			"related_user": {Type: "IS_SESSION_OF", Direction: ogm.From, Target: UserType, Unique: true},
		},
	}
}

// Register adds the auth types to reg. A project replacing one of them calls
// Registry.Override afterwards.
func Register(reg *ogm.Registry) (*Models, error) {
	var models Models
	for _, entry := range []struct {
		schema ogm.NodeSchema
		dst    **ogm.NodeType
	}{
		{PermissionSchema(), &models.Permission},
		{GroupSchema(), &models.Group},
		{UserSchema(), &models.User},
		{SessionSchema(), &models.Session},
	} {
		t, err := reg.Register(entry.schema)
		if err != nil {
			return nil, fmt.Errorf("failed to register auth models: %w", err)
		}
		*entry.dst = t
	}
	return &models, nil
}
