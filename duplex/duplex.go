// Package duplex composes two one-way zerobuffer buffers — a request
// channel and a response channel — into a request/response pair
// (§4.6). It inherits all liveness, timeout and wrap semantics from the
// underlying Reader/Writer pair; nothing here bypasses them.
package duplex

import "github.com/zerobuffer-go/zerobuffer"

func requestBufferName(channel string) string  { return "req-" + channel }
func responseBufferName(channel string) string { return "resp-" + channel }

// Config parameterizes the pair of buffers backing a channel.
type Config struct {
	Request  zerobuffer.BufferConfig
	Response zerobuffer.BufferConfig
}
