package duplex

import (
	"context"
	"fmt"
	"time"

	"github.com/zerobuffer-go/zerobuffer"
)

// Client sends requests on req-<channel> and reads responses from
// resp-<channel>. It owns a Writer on the request buffer and a Reader
// on the response buffer, which it creates (§4.6). Correlation between
// a request and its response is by FIFO order alone: Client is not
// safe for concurrent SendRequestAndWait calls.
type Client struct {
	writer *zerobuffer.Writer
	reader *zerobuffer.Reader
}

// Connect opens a duplex client for channel, creating the response
// buffer and connecting (with retry) to the request buffer the server
// creates.
func Connect(ctx context.Context, channel string, cfg Config, opts ...zerobuffer.Option) (*Client, error) {
	reader, err := zerobuffer.Create(responseBufferName(channel), cfg.Response, opts...)
	if err != nil {
		return nil, fmt.Errorf("duplex: creating response buffer: %w", err)
	}

	writer, err := zerobuffer.ConnectRetry(ctx, requestBufferName(channel), zerobuffer.RetryConfig{}, opts...)
	if err != nil {
		reader.Close()
		return nil, fmt.Errorf("duplex: connecting request writer: %w", err)
	}

	return &Client{writer: writer, reader: reader}, nil
}

// SendRequestAndWait writes request and returns the next response
// frame's bytes, or ErrTimeout if none arrives within timeout (§6.3
// send_request_and_wait).
func (c *Client) SendRequestAndWait(request []byte, timeout time.Duration) ([]byte, error) {
	if err := c.writer.WriteFrame(request); err != nil {
		return nil, fmt.Errorf("duplex: writing request: %w", err)
	}

	frame, err := c.reader.ReadFrame(timeout)
	if err != nil {
		return nil, fmt.Errorf("duplex: reading response: %w", err)
	}
	response := append([]byte(nil), frame.Data()...)
	if err := c.reader.Release(frame); err != nil {
		return nil, fmt.Errorf("duplex: releasing response: %w", err)
	}
	return response, nil
}

// Close disconnects the request writer and destroys the response
// buffer.
func (c *Client) Close() error {
	var err error
	if e := c.writer.Close(); e != nil {
		err = e
	}
	if e := c.reader.Close(); e != nil && err == nil {
		err = e
	}
	return err
}
