package duplex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zerobuffer-go/zerobuffer"
	"github.com/zerobuffer-go/zerobuffer/logging"
)

// dispatchPoll bounds how long a blocking ReadFrame waits before
// re-checking ctx.Done() in the server's dispatch loop.
const dispatchPoll = 200 * time.Millisecond

// Handler is the immutable variant (§4.6): given a request body it
// returns a freshly allocated response body. The returned slice is
// copied into the response buffer.
type Handler func(requestSequence uint64, request []byte) ([]byte, error)

// MutableHandler is the fill-in-place variant (§4.6): it is given the
// request body and a writable view of the response buffer's payload
// size minus 64 bytes, and returns how many bytes of response it wrote.
type MutableHandler func(requestSequence uint64, request []byte, response []byte) (int, error)

// Server answers requests on req-<channel>, writing responses to
// resp-<channel>. It owns a Reader on the request buffer (creating it)
// and a Writer on the response buffer, which it connects to once the
// client has created it (§4.6).
type Server struct {
	reader *zerobuffer.Reader
	writer *zerobuffer.Writer
	log    *zap.SugaredLogger

	handler        Handler
	mutableHandler MutableHandler
	maxResponse    uint64
}

// Create opens the immutable-handler duplex server for channel.
func Create(ctx context.Context, channel string, cfg Config, handler Handler, opts ...zerobuffer.Option) (*Server, error) {
	return create(ctx, channel, cfg, handler, nil, opts...)
}

// CreateMutable opens the fill-in-place duplex server for channel.
func CreateMutable(ctx context.Context, channel string, cfg Config, handler MutableHandler, opts ...zerobuffer.Option) (*Server, error) {
	return create(ctx, channel, cfg, nil, handler, opts...)
}

func create(ctx context.Context, channel string, cfg Config, handler Handler, mutableHandler MutableHandler, opts ...zerobuffer.Option) (*Server, error) {
	reader, err := zerobuffer.Create(requestBufferName(channel), cfg.Request, opts...)
	if err != nil {
		return nil, fmt.Errorf("duplex: creating request buffer: %w", err)
	}

	// The client owns the response buffer's Reader half and creates it;
	// the server only ever connects to it, retrying until the client has
	// done so.
	writer, err := zerobuffer.ConnectRetry(ctx, responseBufferName(channel), zerobuffer.RetryConfig{}, opts...)
	if err != nil {
		reader.Close()
		return nil, fmt.Errorf("duplex: connecting response writer: %w", err)
	}

	return &Server{
		reader:         reader,
		writer:         writer,
		log:            logging.Noop(),
		handler:        handler,
		mutableHandler: mutableHandler,
		maxResponse:    cfg.Response.PayloadSize - 64,
	}, nil
}

// WithLogger attaches a structured logger to the server.
func (s *Server) WithLogger(l *zap.SugaredLogger) { s.log = l }

// Run processes requests until ctx is cancelled or a fatal error
// occurs (request/response buffer corruption, peer death). It uses
// golang.org/x/sync/errgroup to run the dispatch loop alongside a
// cancellation watcher, the corpus's idiom for two cooperating
// goroutines where the first error wins and the other is cancelled
// cleanly.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if err := s.handleOne(); err != nil {
				return err
			}
		}
	})
	g.Go(func() error {
		<-ctx.Done()
		return ctx.Err()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *Server) handleOne() error {
	frame, err := s.reader.ReadFrame(dispatchPoll)
	if err != nil {
		if errors.Is(err, zerobuffer.ErrTimeout) {
			return nil
		}
		return fmt.Errorf("duplex: reading request: %w", err)
	}
	seq := frame.Sequence
	request := append([]byte(nil), frame.Data()...)
	if err := s.reader.Release(frame); err != nil {
		return fmt.Errorf("duplex: releasing request: %w", err)
	}

	if s.mutableHandler != nil {
		if _, err := s.writer.WriteFrameFunc(s.maxResponse, func(body []byte) (int, error) {
			return s.mutableHandler(seq, request, body)
		}); err != nil {
			return fmt.Errorf("duplex: writing response: %w", err)
		}
		return nil
	}

	response, err := s.handler(seq, request)
	if err != nil {
		s.log.Errorw("handler failed", "sequence", seq, "error", err)
		return nil
	}
	if err := s.writer.WriteFrame(response); err != nil {
		return fmt.Errorf("duplex: writing response: %w", err)
	}
	return nil
}

// Close disconnects both the request reader and the response writer.
func (s *Server) Close() error {
	var err error
	if e := s.writer.Close(); e != nil {
		err = e
	}
	if e := s.reader.Close(); e != nil && err == nil {
		err = e
	}
	return err
}
