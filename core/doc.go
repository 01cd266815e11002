// Package core implements the local message fabric actors talk over.
//
// Every actor identity owns an Endpoint with one buffered mailbox. The
// Router delivers point-to-point messages, and correlates synchronous
// request/reply pairs by session on the caller's endpoint. Messages are
// FIFO per sender and unordered across senders.
package core
