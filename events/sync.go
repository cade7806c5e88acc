package events

// DataUpdated announces that shared data (for example an agent list) changed,
// either in this process or in a sibling reached through the broadcaster.
type DataUpdated struct {
	Topic  string
	Origin string
	Remote bool
}

var SyncDataUpdated = NewKey[DataUpdated]("sync:data-updated")
