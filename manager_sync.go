package goAuthClient

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrEthical07/goAuthClient/broadcast"
	"github.com/MrEthical07/goAuthClient/events"
	"github.com/MrEthical07/goAuthClient/session"
)

// startBroadcast joins the sync channel. An injected broadcaster is used
// as is; otherwise a Redis broadcaster is created when broadcast is
// enabled and a Redis client was supplied. Without either, sync degrades to
// this process only.
func (m *Manager) startBroadcast(ctx context.Context) error {
	if m.broadcaster == nil && m.cfg.Broadcast.Enabled {
		if m.redis == nil {
			m.logger.Warn("broadcast_disabled_no_redis")
			return nil
		}
		b, err := broadcast.NewRedisBroadcaster(ctx, m.redis, m.cfg.Broadcast.Channel, m.logger)
		if err != nil {
			return fmt.Errorf("start broadcast: %w", err)
		}
		m.broadcaster = b
		m.ownsBroadcaster = true
	}
	if m.broadcaster == nil {
		return nil
	}

	unsub, err := m.broadcaster.Subscribe(m.onBroadcast)
	if err != nil {
		return fmt.Errorf("subscribe broadcast: %w", err)
	}
	m.mu.Lock()
	m.unsub = append(m.unsub, unsub)
	m.mu.Unlock()
	m.logger.Debug("broadcast_joined", slog.String("origin", m.broadcaster.ID()))
	return nil
}

func (m *Manager) onBroadcast(msg broadcast.Message) {
	if m.isClosed() {
		return
	}
	m.metrics.Inc(MetricBroadcastReceived)

	switch msg.Kind {
	case broadcast.KindLogout:
		if m.cfg.Auth.SpeedMode {
			return
		}
		held := m.heldSession()
		m.clearLocal()
		m.forgetStored(context.Background(), held)
		events.Emit(m.bus, events.AuthLogout, events.Logout{Reason: events.LogoutRemote, Silent: true})
	case broadcast.KindSessionExpired:
		m.handleExpired("remote", true)
	case broadcast.KindDataUpdated:
		events.Emit(m.bus, events.SyncDataUpdated, events.DataUpdated{
			Topic:  msg.Topic,
			Origin: msg.Origin,
			Remote: true,
		})
	default:
		m.logger.Debug("broadcast_kind_unknown", slog.String("kind", string(msg.Kind)))
	}
}

func (m *Manager) heldSession() *session.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess.Clone()
}

// forgetStored removes the stored session if it is still the one held in
// memory. A sibling with its own storage would otherwise restore a session
// ended elsewhere on its next Start. With shared storage the sender has
// already removed it and a newer session stored since is left alone.
func (m *Manager) forgetStored(ctx context.Context, held *session.Session) {
	if held == nil {
		return
	}
	stored := m.store.Read(ctx)
	if stored == nil || stored.RefreshToken != held.RefreshToken {
		return
	}
	if err := m.store.Remove(ctx); err != nil {
		m.logger.Warn("session_remove_failed", slog.Any("error", err))
	}
}

// PublishDataUpdated announces that shared data named by topic changed. It
// is emitted on the local bus and, best effort, to sibling processes.
func (m *Manager) PublishDataUpdated(ctx context.Context, topic string) error {
	if m.isClosed() {
		return ErrManagerClosed
	}
	origin := ""
	if m.broadcaster != nil {
		origin = m.broadcaster.ID()
	}
	events.Emit(m.bus, events.SyncDataUpdated, events.DataUpdated{Topic: topic, Origin: origin})
	return m.publish(ctx, broadcast.Message{Kind: broadcast.KindDataUpdated, Topic: topic})
}

// publish sends msg to sibling processes. Failures are logged and returned
// but never block local handling.
func (m *Manager) publish(ctx context.Context, msg broadcast.Message) error {
	if m.broadcaster == nil {
		return nil
	}
	msg.At = m.clock.Now().UnixMilli()
	if err := m.broadcaster.Publish(ctx, msg); err != nil {
		m.logger.Warn("broadcast_publish_failed", slog.String("kind", string(msg.Kind)), slog.Any("error", err))
		return err
	}
	return nil
}
