package model

import "time"

// Shared defaults used by both the server and CLI binaries.
const (
	DefaultDataDir      = "TrafficLabelling_Limpia"
	DefaultMaxLoadRows  = 100000
	DefaultMaxViewRows  = 5000
	DefaultSampleSeed   = 42
	DefaultQueryTimeout = 30 * time.Second
)

// BenignLabel is the Label value of non-attack flows.
const BenignLabel = "BENIGN"

// OtherProtocol is the ProtocolName of flows whose Protocol code has no known name.
const OtherProtocol = "Other"

// ProtocolNames maps IANA protocol numbers to display names.
var ProtocolNames = map[int]string{
	0:  "HOPOPT",
	1:  "ICMP",
	2:  "IGMP",
	6:  "TCP",
	17: "UDP",
	58: "ICMPv6",
}

// ProtocolName returns the display name for an IANA protocol number.
func ProtocolName(code int) string {
	if name, ok := ProtocolNames[code]; ok {
		return name
	}
	return OtherProtocol
}

// SummaryLabels are the labels shown in the per-IP label summary, in display order.
var SummaryLabels = []string{"BENIGN", "Bot", "DDoS", "PortScan", "DoS", "Infiltration"}

// Column names of the flow table that the dashboard reads directly.
const (
	ColTimestamp       = "Timestamp"
	ColSourceIP        = "Source IP"
	ColDestinationIP   = "Destination IP"
	ColFlowDuration    = "Flow Duration"
	ColTotalFwdPackets = "Total Fwd Packets"
	ColProtocol        = "Protocol"
	ColProtocolName    = "ProtocolName"
	ColLabel           = "Label"
	ColHour            = "Hour"
)
