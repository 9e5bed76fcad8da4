package bus

// Download mutation topics, published by the reconciler after local state
// has been updated. Subscribers (the dashboard) re-read the store on
// receipt; payloads only carry enough to drive highlights and toasts.
const (
	TopicDownloadCreated = "download.created"
	TopicDownloadUpdated = "download.updated"
	TopicDownloadDeleted = "download.deleted"
	TopicDownloadDropped = "download.dropped"
	TopicSyncResynced    = "sync.resynced"
	TopicStreamState     = "stream.state"
)

// CreatedEvent is published when create events or a bulk fetch added rows.
// Initial marks the first population of an empty table, which renders
// without arrival highlights.
type CreatedEvent struct {
	IDs     []int64
	Initial bool
}

// UpdatedEvent is published when update events changed existing rows.
type UpdatedEvent struct {
	IDs []int64
}

// DeletedEvent is published when rows were removed locally.
type DeletedEvent struct {
	IDs []int64
}

// DroppedEvent is published when a stream message was ignored
// (unrecognized or unhandled event type).
type DroppedEvent struct {
	Type int
}

// ResyncEvent is published after a full bulk-fetch replay.
type ResyncEvent struct {
	Added int
}

// StreamStateEvent is published when the mutation stream connects or
// drops, for the status bar.
type StreamStateEvent struct {
	Connected bool
	Err       string
}
