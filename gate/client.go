// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/gatekeeper/channel"
	"github.com/bureau-foundation/gatekeeper/message"
)

// ClientConfig configures the channel Dial returns.
type ClientConfig struct {
	// Codec must match the server's. Nil means message.CBOR().
	Codec message.Codec

	// Services and Default are registered on the channel before it
	// starts dispatching.
	Services map[string]channel.Handler
	Default  channel.Handler

	Logger *slog.Logger
}

// Dial sends gate.hello for clientID over endpoint and waits for the
// server's answer. The operator may be asked about the client, so the
// wait is bounded only by ctx.
//
// On gate.welcome it returns a passive channel that owns endpoint. On
// gate.rejected it closes endpoint and returns a *RejectedError. Any
// other failure closes endpoint and returns an error.
func Dial(ctx context.Context, endpoint channel.Endpoint, clientID string, config ClientConfig) (*channel.Channel, error) {
	if err := validateClientID(clientID); err != nil {
		endpoint.Close()
		return nil, err
	}
	codec := config.Codec
	if codec == nil {
		codec = message.CBOR()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if err := send(endpoint, codec, HelloService, Hello{ClientID: clientID}); err != nil {
		endpoint.Close()
		return nil, fmt.Errorf("sending hello: %w", err)
	}

	stop := context.AfterFunc(ctx, func() { endpoint.Close() })
	envelope, err := receive(endpoint, codec)
	if !stop() {
		endpoint.Close()
		return nil, ctx.Err()
	}
	if err != nil {
		endpoint.Close()
		return nil, fmt.Errorf("%w: waiting for answer: %v", ErrHandshake, err)
	}

	switch envelope.Type {
	case WelcomeService:
		var welcome Welcome
		if err := message.DecodeData(envelope.Data, &welcome); err != nil {
			endpoint.Close()
			return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
		}
		logger.Debug("gate welcomed client", "client_id", clientID, "server_channel", welcome.ChannelID)
		return channel.New(channel.Config{
			Endpoint: endpoint,
			Codec:    codec,
			Role:     channel.RolePassive,
			Services: config.Services,
			Default:  config.Default,
			ID:       welcome.ChannelID,
			Logger:   logger,
		}), nil

	case RejectedService:
		endpoint.Close()
		var rejected Rejected
		if err := message.DecodeData(envelope.Data, &rejected); err != nil || rejected.Reason == "" {
			rejected.Reason = "no reason given"
		}
		return nil, &RejectedError{Reason: rejected.Reason}

	default:
		endpoint.Close()
		return nil, fmt.Errorf("%w: expected %q or %q, got %q", ErrHandshake, WelcomeService, RejectedService, envelope.Type)
	}
}
