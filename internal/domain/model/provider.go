package model

// AssetInfo is the typed result of a provider stock lookup.
type AssetInfo struct {
	Site       string
	AssetID    string
	Title      string
	Cost       int64
	PreviewURL string
	Extension  string
}

// TaskState is the provider-side status of a submitted order.
type TaskState string

const (
	TaskPending TaskState = "pending"
	TaskReady   TaskState = "ready"
	TaskFailed  TaskState = "failed"
)

// TaskStatus is the typed result of a provider status poll.
type TaskStatus struct {
	State    TaskState
	Progress *int
	Message  string
}
