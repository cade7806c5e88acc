// Package broadcast relays session changes between client processes that
// share one stored session, the way browser tabs share local storage.
//
// A [Broadcaster] publishes a [Message] to every peer except the sender.
// [Hub] connects peers inside one process; [RedisBroadcaster] connects
// processes through Redis pub/sub. Delivery is best effort and unordered
// across peers; receivers must tolerate duplicates and misses.
package broadcast
