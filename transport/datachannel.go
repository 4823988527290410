// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
)

// dataChannelOpenTimeout bounds how long OpenDataChannel waits for the
// remote side to acknowledge a new channel.
const dataChannelOpenTimeout = 10 * time.Second

// signalingLabel names the placeholder channel Connect creates so the
// offer carries a data channel section. Listeners discard it.
const signalingLabel = "init"

// NewPeerConnection creates a pion PeerConnection whose data channels
// can be detached. Loopback candidates are included so two processes
// on the same machine (and tests) can connect without a STUN server.
func NewPeerConnection(iceServers []webrtc.ICEServer) (*webrtc.PeerConnection, error) {
	settingEngine := webrtc.SettingEngine{}
	settingEngine.DetachDataChannels()
	settingEngine.SetIncludeLoopbackCandidate(true)

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	return api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
}

// DataChannel is a Conn over a detached, ordered, reliable WebRTC data
// channel. SCTP preserves message boundaries, so each Send is one
// message on the far side with no extra framing.
type DataChannel struct {
	rwc     io.ReadWriteCloser
	label   string
	maxSize int

	closeOnce sync.Once
	closed    atomic.Bool
	closeErr  error
}

var _ Conn = (*DataChannel)(nil)

func newDataChannel(rwc io.ReadWriteCloser, label string, maxSize int) *DataChannel {
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	return &DataChannel{rwc: rwc, label: label, maxSize: maxSize}
}

// Send writes data as one data channel message.
func (d *DataChannel) Send(data []byte) error {
	if d.closed.Load() {
		return ErrClosed
	}
	if len(data) > d.maxSize {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrMessageTooLarge, len(data), d.maxSize)
	}
	if _, err := d.rwc.Write(data); err != nil {
		if d.closed.Load() {
			return ErrClosed
		}
		return fmt.Errorf("writing to data channel %s: %w", d.label, err)
	}
	return nil
}

// Receive reads the next message. It returns io.EOF when the remote
// side closes the channel.
func (d *DataChannel) Receive() ([]byte, error) {
	buffer := make([]byte, d.maxSize)
	n, err := d.rwc.Read(buffer)
	if err != nil {
		if d.closed.Load() {
			return nil, ErrClosed
		}
		if errors.Is(err, io.ErrShortBuffer) {
			return nil, fmt.Errorf("%w: data channel %s message exceeds limit of %d", ErrMessageTooLarge, d.label, d.maxSize)
		}
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading from data channel %s: %w", d.label, err)
	}
	return buffer[:n], nil
}

// Close closes the data channel. It is safe to call more than once.
func (d *DataChannel) Close() error {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		d.closeErr = d.rwc.Close()
	})
	return d.closeErr
}

// Peer reports the channel label as the address.
func (d *DataChannel) Peer() Peer {
	return Peer{Network: "webrtc", Address: d.label}
}

// OpenDataChannel creates a new ordered data channel on pc and waits
// for it to open. The PeerConnection must already be connected or
// connecting.
func OpenDataChannel(ctx context.Context, pc *webrtc.PeerConnection, label string, maxSize int) (*DataChannel, error) {
	ordered := true
	dc, err := pc.CreateDataChannel(label, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, fmt.Errorf("creating data channel %s: %w", label, err)
	}

	opened := make(chan struct{})
	dc.OnOpen(func() { close(opened) })

	select {
	case <-opened:
	case <-time.After(dataChannelOpenTimeout):
		dc.Close()
		return nil, fmt.Errorf("data channel %s did not open within %s", label, dataChannelOpenTimeout)
	case <-ctx.Done():
		dc.Close()
		return nil, ctx.Err()
	}

	raw, err := dc.Detach()
	if err != nil {
		dc.Close()
		return nil, fmt.Errorf("detaching data channel %s: %w", label, err)
	}
	return newDataChannel(raw, label, maxSize), nil
}

// DataChannelListener accepts data channels that the remote side of a
// PeerConnection opens.
type DataChannelListener struct {
	pc      *webrtc.PeerConnection
	logger  *slog.Logger
	maxSize int

	inbound   chan *DataChannel
	closed    chan struct{}
	closeOnce sync.Once
}

var _ Listener = (*DataChannelListener)(nil)

// ListenDataChannels registers an OnDataChannel handler on pc. It must
// be called before signaling starts so no channel is missed.
func ListenDataChannels(pc *webrtc.PeerConnection, maxSize int, logger *slog.Logger) *DataChannelListener {
	if logger == nil {
		logger = slog.Default()
	}
	listener := &DataChannelListener{
		pc:      pc,
		logger:  logger,
		maxSize: maxSize,
		inbound: make(chan *DataChannel, 16),
		closed:  make(chan struct{}),
	}
	pc.OnDataChannel(listener.handleDataChannel)
	return listener
}

func (l *DataChannelListener) handleDataChannel(dc *webrtc.DataChannel) {
	label := dc.Label()
	if label == signalingLabel {
		dc.OnOpen(func() { dc.Close() })
		return
	}
	dc.OnOpen(func() {
		raw, err := dc.Detach()
		if err != nil {
			l.logger.Error("detaching inbound data channel failed", "label", label, "error", err)
			return
		}
		conn := newDataChannel(raw, label, l.maxSize)
		select {
		case l.inbound <- conn:
		case <-l.closed:
			conn.Close()
		}
	})
}

// Accept returns the next inbound data channel.
func (l *DataChannelListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case conn := <-l.inbound:
		return conn, nil
	case <-l.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Address is a synthetic label; data channels have no listen address.
func (l *DataChannelListener) Address() string { return "webrtc" }

// Close stops accepting. Channels already accepted stay open; the
// PeerConnection is owned by the caller.
func (l *DataChannelListener) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	return nil
}

// Connect runs offer/answer signaling between two PeerConnections in
// the same process using vanilla ICE. It is how a supervisor wires a
// child it spawned without a signaling server.
func Connect(ctx context.Context, offerer, answerer *webrtc.PeerConnection) error {
	// pion only emits a data channel section in the SDP once a channel
	// exists on the offering side.
	if _, err := offerer.CreateDataChannel(signalingLabel, nil); err != nil {
		return fmt.Errorf("creating init data channel: %w", err)
	}

	offer, err := offerer.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("creating SDP offer: %w", err)
	}
	offerGathered := webrtc.GatheringCompletePromise(offerer)
	if err := offerer.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("setting local offer: %w", err)
	}
	if err := waitGathered(ctx, offerGathered); err != nil {
		return err
	}

	if err := answerer.SetRemoteDescription(*offerer.LocalDescription()); err != nil {
		return fmt.Errorf("setting remote offer: %w", err)
	}
	answer, err := answerer.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("creating SDP answer: %w", err)
	}
	answerGathered := webrtc.GatheringCompletePromise(answerer)
	if err := answerer.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("setting local answer: %w", err)
	}
	if err := waitGathered(ctx, answerGathered); err != nil {
		return err
	}

	if err := offerer.SetRemoteDescription(*answerer.LocalDescription()); err != nil {
		return fmt.Errorf("setting remote answer: %w", err)
	}
	return nil
}

func waitGathered(ctx context.Context, gathered <-chan struct{}) error {
	select {
	case <-gathered:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
