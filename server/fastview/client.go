package fastview

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	channerics "github.com/niceyeti/channerics/channels"
	"golang.org/x/sync/errgroup"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 1 * time.Second
	// Maximum message size allowed from peer.
	maxMessageSize = 8192

	// The rate at which ele-updates will be sent to the client, so as not to overburden.
	pubResolution  = time.Millisecond * 100
	pingResolution = time.Millisecond * 200
	// The number of pings to tolerate losing before concluding the peer is gone.
	pongWait = pingResolution * 4
)

var upgrader = websocket.Upgrader{}

// Client publishes ele-updates unidirectionally to a web client via websocket.
// Updates must be idempotent: only the latest update received within a publication
// period is sent, intervening ones are discarded.
type Client struct {
	updates <-chan []EleUpdate
	ws      *websock
}

// NewClient upgrades the request to a websocket and returns a client publishing @updates to it.
func NewClient(
	updates <-chan []EleUpdate,
	w http.ResponseWriter,
	r *http.Request,
) (*Client, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied to the request.
		return nil, fmt.Errorf("upgrade: %w", err)
	}
	ws.SetReadLimit(maxMessageSize)

	return &Client{
		updates: updates,
		ws:      newWebSocket(ws),
	}, nil
}

// Sync publishes incoming updates until the client disconnects, the update channel is
// closed, or @ctx is cancelled, then closes the websocket. Sync returns nil upon client
// disconnect or an error if an unexpected error occurred.
func (cli *Client) Sync(ctx context.Context) error {
	// Any of the routines returning ends the session, nil returns included.
	sessionCtx, endSession := context.WithCancel(ctx)
	defer endSession()

	group, groupCtx := errgroup.WithContext(sessionCtx)
	group.Go(func() error {
		defer endSession()
		return cli.readMessages(groupCtx)
	})
	group.Go(func() error {
		defer endSession()
		return cli.pingPong(groupCtx)
	})
	group.Go(func() error {
		defer endSession()
		return cli.publish(groupCtx)
	})
	// Closing the socket is the only way to unblock the reader.
	group.Go(func() error {
		<-groupCtx.Done()
		cli.ws.Close()
		return nil
	})

	if err := group.Wait(); err != nil && !isClosure(err) {
		return err
	}
	return nil
}

var ErrPongDeadlineExceeded error = errors.New("client disconnect, pong deadline exceeded")

// pingPong runs the client liveness check.
// NOTE: this requires that readMessages is running, so that the pong handler is called.
func (cli *Client) pingPong(ctx context.Context) error {
	pong := make(chan struct{}, 1)
	cli.ws.Conn().SetPongHandler(func(_ string) error {
		select {
		case pong <- struct{}{}:
		default:
		}
		return nil
	})

	pinger := channerics.NewTicker(ctx.Done(), pingResolution)
	lastPong := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pinger:
			if time.Since(lastPong) > pongWait {
				return ErrPongDeadlineExceeded
			}
			if err := cli.ping(ctx); err != nil {
				return err
			}
		case <-pong:
			lastPong = time.Now()
		}
	}
}

func (cli *Client) ping(ctx context.Context) error {
	return cli.ws.Write(
		ctx,
		func(ws *websocket.Conn) (err error) {
			if err = ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				if isError(err) {
					err = fmt.Errorf("ping failed: %T %w", err, err)
				}
			}
			return
		})
}

// readMessages drains messages from the client, which is required to process control frames.
// Errors returned by websocket Read methods are permanent, hence any error must trigger full teardown.
func (cli *Client) readMessages(ctx context.Context) error {
	for {
		err := cli.ws.Read(
			ctx,
			func(ws *websocket.Conn) (readErr error) {
				_, _, readErr = ws.ReadMessage()
				return
			})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// publish sends the latest pending update once per publication period.
func (cli *Client) publish(ctx context.Context) error {
	var pending []EleUpdate
	ticker := channerics.NewTicker(ctx.Done(), pubResolution)
	for {
		select {
		case <-ctx.Done():
			return nil
		case updates, ok := <-cli.updates:
			// Graceful input channel closure
			if !ok {
				return cli.write(ctx, pending)
			}
			pending = updates
		case <-ticker:
			if err := cli.write(ctx, pending); err != nil {
				return err
			}
			pending = nil
		}
	}
}

func (cli *Client) write(ctx context.Context, updates []EleUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	return cli.ws.Write(
		ctx,
		func(ws *websocket.Conn) (writeErr error) {
			if writeErr = ws.SetWriteDeadline(time.Now().Add(writeWait)); writeErr != nil {
				return fmt.Errorf("failed to set deadline: %T %w", writeErr, writeErr)
			}
			if writeErr = ws.WriteJSON(updates); writeErr != nil && isError(writeErr) {
				writeErr = fmt.Errorf("publish failed: %T %w", writeErr, writeErr)
			}
			return
		})
}

func isError(err error) bool {
	return err != nil && websocket.IsUnexpectedCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway)
}

func isClosure(err error) bool {
	return err != nil && websocket.IsCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway)
}

// ErrSockCongestion indicates there are too many waiters on the socket for a given op.
var ErrSockCongestion = errors.New("sock op failed due to congestion")

const (
	writeDeadline    = time.Second
	closeGracePeriod = time.Second
)

// websock serializes reads and writes to the websocket, whose requirements
// are that there may be only one concurrent reader and writer at a time.
type websock struct {
	// These are merely mutexes, but channel semantics are cleaner.
	readSem  chan struct{}
	writeSem chan struct{}
	ws       *websocket.Conn
}

func newWebSocket(ws *websocket.Conn) *websock {
	return &websock{
		readSem:  make(chan struct{}, 1),
		writeSem: make(chan struct{}, 1),
		ws:       ws,
	}
}

// Conn returns the underlying websocket.
// This should only be used non-concurrently for setup, e.g. adding handlers.
func (sock *websock) Conn() *websocket.Conn {
	return sock.ws
}

// Close sends a close frame, allows the reader a grace period to receive the peer's reply,
// then closes the connection. No writes are possible afterward.
func (sock *websock) Close() {
	sock.writeSem <- struct{}{}
	_ = sock.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))

	select {
	case sock.readSem <- struct{}{}:
	case <-time.After(closeGracePeriod):
	}
	sock.ws.Close()
}

// Read serializes read operations on the internal web socket. A single reader is expected;
// it may block in @readFn until a message arrives or the socket is closed.
func (sock *websock) Read(
	ctx context.Context,
	readFn func(*websocket.Conn) error,
) error {
	select {
	case <-ctx.Done():
		return nil
	case sock.readSem <- struct{}{}:
		defer func() { <-sock.readSem }()
		return readFn(sock.ws)
	}
}

// Write serializes write operations to the websocket.
func (sock *websock) Write(
	ctx context.Context,
	writeFn func(*websocket.Conn) error,
) error {
	select {
	case <-ctx.Done():
		return nil
	case sock.writeSem <- struct{}{}:
		defer func() { <-sock.writeSem }()
		return writeFn(sock.ws)
	case <-time.After(writeDeadline):
		return ErrSockCongestion
	}
}
