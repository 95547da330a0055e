package models

// NodeState is the lifecycle of a frontier entry: queued -> fetching -> visited | failed
type NodeState string

const (
	NodeStateQueued   NodeState = "queued"
	NodeStateFetching NodeState = "fetching"
	NodeStateVisited  NodeState = "visited"
	NodeStateFailed   NodeState = "failed"
)

// String implements fmt.Stringer for logging
func (s NodeState) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// PageStatus represents the ledger status of a crawled page
type PageStatus string

const (
	PageStatusUnset   PageStatus = ""
	PageStatusPending PageStatus = "pending" // Queued, not fetched yet
	PageStatusSuccess PageStatus = "success"
	PageStatusFailure PageStatus = "failure"
)

// String implements fmt.Stringer for logging
func (s PageStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known operational value
func (s PageStatus) IsValid() bool {
	switch s {
	case PageStatusPending, PageStatusSuccess, PageStatusFailure:
		return true
	}
	return false
}

// AttachmentStatus represents the ledger status of an attachment download
type AttachmentStatus string

const (
	AttachmentStatusUnset    AttachmentStatus = ""
	AttachmentStatusSuccess  AttachmentStatus = "success"
	AttachmentStatusFailure  AttachmentStatus = "failure"
	AttachmentStatusNotFound AttachmentStatus = "not_found"
	AttachmentStatusDBError  AttachmentStatus = "db_error"
)

// String implements fmt.Stringer for logging
func (s AttachmentStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known operational value
func (s AttachmentStatus) IsValid() bool {
	switch s {
	case AttachmentStatusSuccess, AttachmentStatusFailure:
		return true
	}
	return false
}

// StateToPageStatus maps a terminal node state to the status recorded in the ledger
func StateToPageStatus(s NodeState) PageStatus {
	switch s {
	case NodeStateVisited:
		return PageStatusSuccess
	case NodeStateFailed:
		return PageStatusFailure
	case NodeStateQueued, NodeStateFetching:
		return PageStatusPending
	}
	return PageStatusUnset
}
