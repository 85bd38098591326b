package model

import (
	"github.com/armchr/graphogm/internal/ogm"
)

type PropertyInfo struct {
	Name             string `json:"name"`
	Required         bool   `json:"required,omitempty"`
	Unique           bool   `json:"unique,omitempty"`
	HasDefault       bool   `json:"has_default,omitempty"`
	ExternallyStored bool   `json:"externally_stored,omitempty"`
}

type RelationshipInfo struct {
	Name          string         `json:"name"`
	Type          string         `json:"type"`
	Direction     string         `json:"direction"`
	FarType       string         `json:"far_type,omitempty"`
	OnDelete      string         `json:"on_delete"`
	Unique        bool           `json:"unique,omitempty"`
	AllowSelfLoop bool           `json:"allow_self_loop,omitempty"`
	Properties    []PropertyInfo `json:"properties"`
}

type ModelInfo struct {
	Name          string             `json:"name"`
	Parent        string             `json:"parent,omitempty"`
	Labels        []string           `json:"labels"`
	Overridden    bool               `json:"overridden,omitempty"`
	Properties    []PropertyInfo     `json:"properties"`
	Relationships []RelationshipInfo `json:"relationships"`
}

type ListModelsResponse struct {
	Models []ModelInfo `json:"models"`
	Count  int         `json:"count"`
}

type ListNodesResponse struct {
	Type  string      `json:"type"`
	Nodes []*ogm.Node `json:"nodes"`
	Count int         `json:"count"`
}

type ProjectionResponse struct {
	Type string           `json:"type"`
	Rows []map[string]any `json:"rows"`
}

type CountResponse struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

// QueryResponse is returned instead of results when explain=true.
type QueryResponse struct {
	Query  string         `json:"query"`
	Params map[string]any `json:"params"`
	Inline string         `json:"inline"`
}

type RelationshipRow struct {
	Node         *ogm.Node                 `json:"node,omitempty"`
	Relationship *ogm.RelationshipInstance `json:"relationship,omitempty"`
}

type ListRelatedResponse struct {
	Type         string            `json:"type"`
	UUID         string            `json:"uuid"`
	Relationship string            `json:"relationship"`
	Results      []RelationshipRow `json:"results"`
	Count        int               `json:"count"`
}

func DescribeProperties(props []ogm.Property) []PropertyInfo {
	out := make([]PropertyInfo, len(props))
	for i, p := range props {
		out[i] = PropertyInfo{
			Name:             p.Name,
			Required:         p.Required,
			Unique:           p.Unique,
			HasDefault:       p.HasDefault(),
			ExternallyStored: p.ExternallyStored,
		}
	}
	return out
}

// DescribeModel summarizes a registered type.
func DescribeModel(t *ogm.NodeType) ModelInfo {
	info := ModelInfo{
		Name:          t.Name(),
		Parent:        t.Parent(),
		Labels:        t.Labels(),
		Overridden:    t.Registry().Overridden(t.Name()),
		Properties:    DescribeProperties(t.Properties()),
		Relationships: []RelationshipInfo{},
	}
	for _, name := range t.RelationshipNames() {
		rt, _ := t.Relationship(name)
		onDelete := "protect"
		if rt.OnDelete() == ogm.Cascade {
			onDelete = "cascade"
		}
		info.Relationships = append(info.Relationships, RelationshipInfo{
			Name:          name,
			Type:          rt.Type(),
			Direction:     rt.Direction().String(),
			FarType:       rt.FarTypeName(),
			OnDelete:      onDelete,
			Unique:        rt.Unique(),
			AllowSelfLoop: rt.AllowSelfLoop(),
			Properties:    DescribeProperties(rt.Properties()),
		})
	}
	return info
}
