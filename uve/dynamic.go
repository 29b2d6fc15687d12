// Package uve caches the latest value of every keyed UVE record.
/*
 * Copyright (c) 2024-2026, NVIDIA CORPORATION. All rights reserved.
 */
package uve

import (
	"encoding/xml"
	"sort"
)

type (
	// DynamicElem is one key/value pair in a dynamic UVE body.
	DynamicElem struct {
		Key   string `xml:"key,attr"`
		Value string `xml:",chardata"`
	}

	// DynamicData is the body of a dynamic UVE: a named element map with
	// no generated schema.
	DynamicData struct {
		XMLName  xml.Name      `xml:"DynamicUVEData"`
		Name     string        `xml:"name"`
		Tbl      string        `xml:"table,omitempty"`
		Deleted  bool          `xml:"deleted,omitempty"`
		Elements []DynamicElem `xml:"elements>element"`
	}
)

// interface guard
var _ Data = (*DynamicData)(nil)

func (d *DynamicData) Key() string     { return d.Name }
func (d *DynamicData) Table() string   { return d.Tbl }
func (d *DynamicData) IsDeleted() bool { return d.Deleted }

func (d *DynamicData) Marshal() ([]byte, error) { return xml.Marshal(d) }

// MergeDynamic is the dynamic-UVE merge rule: a tombstone replaces
// outright; otherwise the element map is replaced, canonicalized by key.
func MergeDynamic(_, incoming Data) Data {
	in, ok := incoming.(*DynamicData)
	if !ok {
		return incoming
	}
	if in.Deleted {
		return in
	}
	sort.Slice(in.Elements, func(i, j int) bool {
		return in.Elements[i].Key < in.Elements[j].Key
	})
	return in
}
