package net

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kittyledger/server/internal/kitty"
	"github.com/kittyledger/server/internal/net/packet"
	"go.uber.org/zap"
)

const defaultWriteTimeout = 10 * time.Second

// Session represents a single client connection. Network I/O runs in
// dedicated goroutines; registry calls and outBuf are touched only from the
// server loop.
type Session struct {
	ID   uint64
	conn net.Conn

	state atomic.Int32 // packet.SessionState stored as int32
	mu    sync.Mutex   // serialises conn writes

	InQueue  chan []byte // server loop reads packets from here
	OutQueue chan []byte // writer goroutine reads from here

	IP      string
	Account kitty.Account // set once login succeeds

	// Login attempts inside the current minute (server loop only).
	LoginAttempts int
	LoginWindow   int64

	outBuf [][]byte // buffered packets, flushed by OutputSystem

	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
	drainCh   chan struct{} // closed by CloseAfterFlush
	drainOnce sync.Once

	readTimeout  time.Duration // idle limit between frames (0 = none)
	writeTimeout time.Duration

	// Per-second packet rate limiter (readLoop goroutine only, no lock needed)
	pktPerSec  int   // max packets/sec (0 = unlimited)
	pktCount   int   // packets received this second
	pktResetAt int64 // unix second of last counter reset

	log *zap.Logger
}

func NewSession(conn net.Conn, id uint64, inSize, outSize, pktPerSec int, log *zap.Logger) *Session {
	s := &Session{
		ID:        id,
		conn:      conn,
		InQueue:   make(chan []byte, inSize),
		OutQueue:  make(chan []byte, outSize),
		IP:        conn.RemoteAddr().String(),
		closeCh:   make(chan struct{}),
		drainCh:   make(chan struct{}),
		pktPerSec: pktPerSec,
		log:       log.With(zap.Uint64("session", id)),

		writeTimeout: defaultWriteTimeout,
	}
	s.state.Store(int32(packet.StateHandshake))
	return s
}

// SetTimeouts configures the idle read limit and the per-frame write limit.
// Call before Start.
func (s *Session) SetTimeouts(read, write time.Duration) {
	s.readTimeout = read
	if write > 0 {
		s.writeTimeout = write
	}
}

func (s *Session) State() packet.SessionState {
	return packet.SessionState(s.state.Load())
}

func (s *Session) SetState(st packet.SessionState) {
	s.state.Store(int32(st))
}

// Start writes the init packet directly to the connection and launches the
// reader and writer goroutines.
func (s *Session) Start(serverName string) {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_INITPACKET)
	w.WriteH(packet.ProtocolVersion)
	w.WriteS(serverName)

	s.mu.Lock()
	s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	err := WriteFrame(s.conn, w.Bytes())
	s.mu.Unlock()
	if err != nil {
		s.log.Error("init packet write failed", zap.Error(err))
		s.Close()
		return
	}

	go s.readLoop()
	go s.writeLoop()
}

// Send buffers a packet for sending. The packet is not written to TCP until
// FlushOutput is called by OutputSystem.
func (s *Session) Send(data []byte) {
	if s.closed.Load() {
		return
	}
	s.outBuf = append(s.outBuf, data)
}

// FlushOutput drains the output buffer to OutQueue for the writeLoop goroutine.
// Non-blocking: if OutQueue is full, the session is disconnected (backpressure).
func (s *Session) FlushOutput() {
	for _, data := range s.outBuf {
		select {
		case s.OutQueue <- data:
		default:
			s.log.Warn("output queue full, dropping slow client")
			s.Close()
			s.outBuf = s.outBuf[:0]
			return
		}
	}
	s.outBuf = s.outBuf[:0]
}

// Close gracefully shuts down the session.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.SetState(packet.StateDisconnecting)
		close(s.closeCh)
		s.conn.Close()
	})
}

// CloseAfterFlush hands buffered output to the writer and closes the
// connection once everything queued so far has been written.
func (s *Session) CloseAfterFlush() {
	if s.closed.Load() {
		return
	}
	s.FlushOutput()
	s.SetState(packet.StateDisconnecting)
	s.drainOnce.Do(func() { close(s.drainCh) })
}

// Done is closed when the connection has been closed.
func (s *Session) Done() <-chan struct{} { return s.closeCh }

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// readLoop reads frames from the TCP connection and pushes them onto InQueue
// for the server loop to consume.
func (s *Session) readLoop() {
	defer s.Close()

	for {
		select {
		case <-s.closeCh:
			return
		default:
		}

		if s.readTimeout > 0 {
			s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		}
		payload, err := ReadFrame(s.conn)
		if err != nil {
			if !s.closed.Load() {
				s.log.Debug("read failed", zap.Error(err))
			}
			return
		}

		if s.pktPerSec > 0 {
			now := time.Now().Unix()
			if now != s.pktResetAt {
				s.pktCount = 0
				s.pktResetAt = now
			}
			s.pktCount++
			if s.pktCount > s.pktPerSec {
				s.log.Warn("packet rate exceeded, disconnecting", zap.Int("pps", s.pktCount))
				return
			}
		}

		// Requests must keep their order, so block rather than drop.
		select {
		case s.InQueue <- payload:
		case <-s.closeCh:
			return
		}
	}
}

// writeLoop reads packets from OutQueue and writes them as framed data to the
// TCP connection.
func (s *Session) writeLoop() {
	defer s.Close()

	for {
		select {
		case data := <-s.OutQueue:
			if !s.writeOnePacket(data) {
				return
			}
		case <-s.drainCh:
			for {
				select {
				case data := <-s.OutQueue:
					if !s.writeOnePacket(data) {
						return
					}
				default:
					return
				}
			}
		case <-s.closeCh:
			return
		}
	}
}

func (s *Session) writeOnePacket(data []byte) bool {
	if len(data) > 0 {
		s.log.Debug("TX",
			zap.String("op", fmt.Sprintf("0x%02X", data[0])),
			zap.Int("len", len(data)),
		)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := WriteFrame(s.conn, data); err != nil {
		if !s.closed.Load() {
			s.log.Debug("write failed", zap.Error(err))
		}
		return false
	}
	return true
}
