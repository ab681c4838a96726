package forge

// SigmaForge event types

// bus.Send(REQ_SUBMITTED, req)
// bus.Send(NET_TIP_CHANGED, tip)

// Interface for any event
type EventType interface {
	Type() string
}

// slice of all msg types for config funcs lookup
var EVENT_TYPES []EventType = []EventType{EVENT_ALL("ALL"),
	EVENT_SYS("SYS"),
	EVENT_NET("NET"),
	EVENT_REQ("REQ")}

// Special category, do not use directly, represents *
type EVENT_ALL string

func (e EVENT_ALL) Type() string {
	return "ALL"
}

// System Events
type EVENT_SYS string

func (e EVENT_SYS) Type() string {
	return "SYS"
}

const (
	SYS_STARTUP EVENT_SYS = "STARTUP"
	SYS_ERR     EVENT_SYS = "ERR"
	SYS_MSG     EVENT_SYS = "MSG"
)

// Network Events
type EVENT_NET string

func (e EVENT_NET) Type() string {
	return "NET"
}

const (
	NET_TIP_CHANGED EVENT_NET = "TIP_CHANGED"
	NET_DEGRADED    EVENT_NET = "DEGRADED"
)

// Signing Request Events
type EVENT_REQ string

func (e EVENT_REQ) Type() string {
	return "REQ"
}

const (
	REQ_CREATED   EVENT_REQ = "CREATED"
	REQ_SUBMITTED EVENT_REQ = "SUBMITTED"
	REQ_DECLINED  EVENT_REQ = "DECLINED"
	REQ_FAILED    EVENT_REQ = "FAILED"
	REQ_EXPIRED   EVENT_REQ = "EXPIRED"
)
