package model

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// FlowRecord is one network flow row of the base table.
// Numeric holds every numeric column of the table in the order of
// FlowSample.NumericColumns; null and non-finite values are NaN.
type FlowRecord struct {
	RowID           int64
	Timestamp       *time.Time
	SourceIP        string
	DestinationIP   string
	FlowDuration    float64
	TotalFwdPackets float64
	Protocol        *int
	ProtocolName    string
	Label           string
	Numeric         []float64
}

// Hour returns the hour of day of the flow timestamp, or false when the timestamp is null.
func (r FlowRecord) Hour() (int, bool) {
	if r.Timestamp == nil {
		return 0, false
	}
	return r.Timestamp.Hour(), true
}

// HasPackets reports whether TotalFwdPackets holds a value.
func (r FlowRecord) HasPackets() bool {
	return !math.IsNaN(r.TotalFwdPackets)
}

// Selection is the user's filter state. Empty Protocol or SourceIP means
// unset. A duration bound is applied only when its Has flag is set; an unset
// bound falls back to the base table's range, so [0,0] is a real range.
type Selection struct {
	Protocol    string
	DurationMin float64
	DurationMax float64
	HasMin      bool
	HasMax      bool
	SourceIP    string
}

// WithRange returns s with both duration bounds set.
func (s Selection) WithRange(lo, hi float64) Selection {
	s.DurationMin, s.HasMin = lo, true
	s.DurationMax, s.HasMax = hi, true
	return s
}

// WithMin returns s with the lower duration bound set.
func (s Selection) WithMin(lo float64) Selection {
	s.DurationMin, s.HasMin = lo, true
	return s
}

// WithMax returns s with the upper duration bound set.
func (s Selection) WithMax(hi float64) Selection {
	s.DurationMax, s.HasMax = hi, true
	return s
}

// HasIP reports whether a source IP is selected.
func (s Selection) HasIP() bool { return s.SourceIP != "" }

// Normalize trims the string fields and zeroes unset bounds.
func (s Selection) Normalize() Selection {
	s.Protocol = strings.TrimSpace(s.Protocol)
	s.SourceIP = strings.TrimSpace(s.SourceIP)
	if !s.HasMin {
		s.DurationMin = 0
	}
	if !s.HasMax {
		s.DurationMax = 0
	}
	return s
}

// selectionWire is the encoded form of a Selection. Absent bounds are unset.
type selectionWire struct {
	Protocol    string   `json:"protocol,omitempty" yaml:"protocol,omitempty"`
	DurationMin *float64 `json:"duration_min,omitempty" yaml:"duration_min,omitempty"`
	DurationMax *float64 `json:"duration_max,omitempty" yaml:"duration_max,omitempty"`
	SourceIP    string   `json:"ip,omitempty" yaml:"ip,omitempty"`
}

func (s Selection) wire() selectionWire {
	w := selectionWire{Protocol: s.Protocol, SourceIP: s.SourceIP}
	if s.HasMin {
		lo := s.DurationMin
		w.DurationMin = &lo
	}
	if s.HasMax {
		hi := s.DurationMax
		w.DurationMax = &hi
	}
	return w
}

func (w selectionWire) selection() Selection {
	s := Selection{Protocol: w.Protocol, SourceIP: w.SourceIP}
	if w.DurationMin != nil {
		s = s.WithMin(*w.DurationMin)
	}
	if w.DurationMax != nil {
		s = s.WithMax(*w.DurationMax)
	}
	return s
}

func (s Selection) MarshalJSON() ([]byte, error) { return json.Marshal(s.wire()) }

func (s *Selection) UnmarshalJSON(data []byte) error {
	var w selectionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = w.selection()
	return nil
}

func (s Selection) MarshalYAML() (interface{}, error) { return s.wire(), nil }

func (s *Selection) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var w selectionWire
	if err := unmarshal(&w); err != nil {
		return err
	}
	*s = w.selection()
	return nil
}

// FlowFilter is the store-level filter derived from a Selection.
type FlowFilter struct {
	Protocol    string
	SourceIP    string
	DurationMin float64
	DurationMax float64
	Limit       int
	Seed        int64
}

// FlowSample is the filtered, sampled view of the base table.
type FlowSample struct {
	Rows           []FlowRecord
	Matched        int
	NumericColumns []string
}

// DurationRange is the closed interval of observed Flow Duration values.
type DurationRange struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// LabelCount is the number of base-table rows carrying a label.
type LabelCount struct {
	Label string `json:"label" yaml:"label"`
	Count int64  `json:"count" yaml:"count"`
}

// DatasetInfo describes the loaded base table. It is built once after load.
type DatasetInfo struct {
	LoadID         string        `json:"load_id,omitempty" yaml:"load_id,omitempty"`
	LoadedAt       time.Time     `json:"loaded_at" yaml:"loaded_at"`
	Rows           int64         `json:"rows" yaml:"rows"`
	Protocols      []string      `json:"protocols" yaml:"protocols"`
	MaliciousIPs   []string      `json:"malicious_ips" yaml:"malicious_ips"`
	Duration       DurationRange `json:"duration" yaml:"duration"`
	LabelCounts    []LabelCount  `json:"label_counts" yaml:"label_counts"`
	NumericColumns []string      `json:"numeric_columns" yaml:"numeric_columns"`
}

// LoadRecord is one row of the dataset load history.
type LoadRecord struct {
	ID             string    `json:"id"`
	Source         string    `json:"source"`
	Files          int       `json:"files"`
	RowsRead       int64     `json:"rows_read"`
	RowsKept       int64     `json:"rows_kept"`
	Sampled        bool      `json:"sampled"`
	ParseWarnings  int64     `json:"parse_warnings"`
	LoadedAt       time.Time `json:"loaded_at"`
	DurationMillis int64     `json:"duration_ms"`
}
