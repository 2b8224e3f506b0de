package p2p

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/dmitrijs2005/cradlekeeper/internal/common"
	"github.com/dmitrijs2005/cradlekeeper/internal/logging"
)

// NewPairingCode returns the short code both users read aloud and
// compare when pairing devices.
func NewPairingCode() (string, error) {
	return common.MakeRandHexString(3)
}

// SessionState is the pairing lifecycle. A pending invitation must be
// explicitly accepted or declined; there is no auto-accept.
type SessionState string

const (
	StateIdle        SessionState = "idle"
	StateAdvertising SessionState = "advertising"
	StateBrowsing    SessionState = "browsing"
	StateInvited     SessionState = "invited"
	StateConnected   SessionState = "connected"
)

var (
	ErrNotConnected    = errors.New("peer session not connected")
	ErrInviteDeclined  = errors.New("peer declined the invitation")
	ErrNoPendingInvite = errors.New("no pending invitation")
)

const handshakeTimeout = 30 * time.Second

// maxFrameSize bounds one websocket message: a full resource chunk plus
// envelope framing and base64 expansion.
const maxFrameSize = 4 * ChunkSize

// Invite is a pending inbound pairing request awaiting the user's
// decision.
type Invite struct {
	DeviceName string
	salt       []byte
	conn       *websocket.Conn
}

// Session is one end of a direct peer link. All payload-bearing
// messages after the handshake are sealed with the key derived from the
// pairing code.
type Session struct {
	pairingCode string
	deviceName  string
	logger      logging.Logger

	mu      sync.Mutex
	state   SessionState
	conn    *websocket.Conn
	key     []byte
	pending *Invite
	onState func(SessionState)

	srv *http.Server
}

// NewSession returns an idle session for the given pairing code.
func NewSession(pairingCode, deviceName string, logger logging.Logger) *Session {
	return &Session{
		pairingCode: pairingCode,
		deviceName:  deviceName,
		logger:      logger,
		state:       StateIdle,
	}
}

// OnStateChange registers an observer for lifecycle transitions.
func (s *Session) OnStateChange(fn func(SessionState)) {
	s.mu.Lock()
	s.onState = fn
	s.mu.Unlock()
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	s.state = state
	fn := s.onState
	s.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

// Advertise listens on addr for an inbound peer. When a hello arrives
// the session moves to StateInvited and onInvite fires; the user then
// calls Accept or Decline. Advertise returns once the listener is up.
func (s *Session) Advertise(ctx context.Context, addr string, onInvite func(*Invite)) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to advertise peer session: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/pair", func(w http.ResponseWriter, r *http.Request) {
		s.handleInbound(w, r, onInvite)
	})

	s.mu.Lock()
	s.srv = &http.Server{Handler: mux}
	s.mu.Unlock()

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn(ctx, "peer listener stopped", "error", err)
		}
	}()

	s.setState(StateAdvertising)
	return ln.Addr().String(), nil
}

func (s *Session) handleInbound(w http.ResponseWriter, r *http.Request, onInvite func(*Invite)) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn(r.Context(), "peer upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
	defer cancel()

	env, err := s.read(ctx, conn)
	if err != nil || env.Type != TypeHello {
		conn.Close(websocket.StatusProtocolError, "expected hello")
		return
	}
	var hello Hello
	if err := env.Decode(&hello); err != nil {
		conn.Close(websocket.StatusProtocolError, "bad hello")
		return
	}

	invite := &Invite{DeviceName: hello.DeviceName, salt: hello.Salt, conn: conn}

	s.mu.Lock()
	if s.state != StateAdvertising {
		s.mu.Unlock()
		conn.Close(websocket.StatusTryAgainLater, "busy")
		return
	}
	s.pending = invite
	s.mu.Unlock()

	s.setState(StateInvited)
	if onInvite != nil {
		onInvite(invite)
	}
}

// Accept confirms the pending invitation: the session derives the
// shared key, acks the peer and becomes connected.
func (s *Session) Accept(ctx context.Context) error {
	s.mu.Lock()
	invite := s.pending
	s.pending = nil
	s.mu.Unlock()
	if invite == nil {
		return ErrNoPendingInvite
	}

	key := DeriveSessionKey(s.pairingCode, invite.salt)
	env, err := NewEnvelope(TypeAck, Ack{Accepted: true})
	if err != nil {
		return err
	}
	if err := s.write(ctx, invite.conn, env); err != nil {
		invite.conn.Close(websocket.StatusInternalError, "")
		s.setState(StateIdle)
		return err
	}

	invite.conn.SetReadLimit(maxFrameSize)
	s.mu.Lock()
	s.conn = invite.conn
	s.key = key
	s.mu.Unlock()
	s.setState(StateConnected)
	return nil
}

// Decline rejects the pending invitation and returns to advertising.
func (s *Session) Decline(ctx context.Context) error {
	s.mu.Lock()
	invite := s.pending
	s.pending = nil
	s.mu.Unlock()
	if invite == nil {
		return ErrNoPendingInvite
	}

	if env, err := NewEnvelope(TypeAck, Ack{Accepted: false, Message: "declined"}); err == nil {
		_ = s.write(ctx, invite.conn, env)
	}
	invite.conn.Close(websocket.StatusNormalClosure, "declined")
	s.setState(StateAdvertising)
	return nil
}

// Connect dials an advertising peer, sends the hello and waits for the
// remote user's decision. On acceptance the session is connected; a
// decline surfaces ErrInviteDeclined.
func (s *Session) Connect(ctx context.Context, url string) error {
	s.setState(StateBrowsing)

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		s.setState(StateIdle)
		return fmt.Errorf("failed to reach peer: %w", err)
	}

	salt, err := NewSessionSalt()
	if err != nil {
		conn.Close(websocket.StatusInternalError, "")
		s.setState(StateIdle)
		return err
	}

	env, err := NewEnvelope(TypeHello, Hello{DeviceName: s.deviceName, Salt: salt})
	if err != nil {
		conn.Close(websocket.StatusInternalError, "")
		s.setState(StateIdle)
		return err
	}
	if err := s.write(ctx, conn, env); err != nil {
		conn.Close(websocket.StatusInternalError, "")
		s.setState(StateIdle)
		return err
	}

	s.setState(StateInvited)

	reply, err := s.read(ctx, conn)
	if err != nil {
		conn.Close(websocket.StatusProtocolError, "")
		s.setState(StateIdle)
		return err
	}
	var ack Ack
	if reply.Type != TypeAck || reply.Decode(&ack) != nil {
		conn.Close(websocket.StatusProtocolError, "expected ack")
		s.setState(StateIdle)
		return &IncompatibleError{Reason: "unexpected handshake reply"}
	}
	if !ack.Accepted {
		conn.Close(websocket.StatusNormalClosure, "")
		s.setState(StateIdle)
		return ErrInviteDeclined
	}

	conn.SetReadLimit(maxFrameSize)
	s.mu.Lock()
	s.conn = conn
	s.key = DeriveSessionKey(s.pairingCode, salt)
	s.mu.Unlock()
	s.setState(StateConnected)
	return nil
}

// Send seals the payload with the session key and transmits it.
func (s *Session) Send(ctx context.Context, t MessageType, payload any) error {
	s.mu.Lock()
	conn, key := s.conn, s.key
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	ciphertext, nonce, err := sealPayload(payload, key)
	if err != nil {
		return fmt.Errorf("failed to seal %s payload: %w", t, err)
	}
	env := &Envelope{
		Version: ProtocolVersion,
		Type:    t,
		Payload: ciphertext,
		Nonce:   nonce,
		SentAt:  time.Now(),
	}
	return s.write(ctx, conn, env)
}

// Receive reads the next envelope and opens its payload into v,
// returning the message type. Incompatible envelopes surface as
// *IncompatibleError without tearing the session down.
func (s *Session) Receive(ctx context.Context, v any) (MessageType, error) {
	s.mu.Lock()
	conn, key := s.conn, s.key
	s.mu.Unlock()
	if conn == nil {
		return "", ErrNotConnected
	}

	env, err := s.read(ctx, conn)
	if err != nil {
		return "", err
	}
	if len(env.Nonce) == 0 {
		if err := env.Decode(v); err != nil {
			return env.Type, err
		}
		return env.Type, nil
	}
	if err := openPayload(env.Payload, env.Nonce, key, v); err != nil {
		return env.Type, &IncompatibleError{Reason: fmt.Sprintf("unreadable %s payload", env.Type)}
	}
	return env.Type, nil
}

// Close tears the session down and returns it to idle. Safe to call
// more than once.
func (s *Session) Close() {
	s.mu.Lock()
	conn := s.conn
	srv := s.srv
	s.conn = nil
	s.key = nil
	s.pending = nil
	s.srv = nil
	s.mu.Unlock()

	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "")
	}
	if srv != nil {
		_ = srv.Close()
	}
	s.setState(StateIdle)
}

func (s *Session) write(ctx context.Context, conn *websocket.Conn, env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func (s *Session) read(ctx context.Context, conn *websocket.Conn) (*Envelope, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	return DecodeEnvelope(data)
}
