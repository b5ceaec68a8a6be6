package main

import (
	"log/slog"

	"github.com/lowvolt/jkble/internal/session"
)

// daemonObserver logs every Session callback at a level appropriate to
// its severity. It holds no state of its own; runDevice derives the
// reconnect decision from Session.Status and Session.Connect's return
// value, not from these callbacks.
type daemonObserver struct {
	logger *slog.Logger
}

func (o *daemonObserver) OnStatusChange(status session.Status) {
	o.logger.Debug("status change", slog.String("status", status.String()))
}

func (o *daemonObserver) OnConnected(identity session.DeviceIdentity) {
	o.logger.Info("connected", slog.String("device_id", identity.ID), slog.String("device_name", identity.Name))
}

func (o *daemonObserver) OnDisconnected(reason session.DisconnectReason) {
	o.logger.Info("disconnected", slog.String("reason", reason.String()))
}

func (o *daemonObserver) OnRequestDeviceError(err error) {
	o.logger.Warn("device request failed", slog.String("error", err.Error()))
}

func (o *daemonObserver) OnPreviousUnavailable(device *session.DeviceIdentity) {
	id := "unknown"
	if device != nil {
		id = device.ID
	}
	o.logger.Warn("previously bonded device unavailable", slog.String("device_id", id))
}

func (o *daemonObserver) OnDataReceived(kind string, record session.Record) {
	o.logger.Debug("record received", slog.String("kind", kind), slog.Int("fields", len(record)))
}

func (o *daemonObserver) OnError(err error) {
	o.logger.Warn("recoverable session error", slog.String("error", err.Error()))
}

func (o *daemonObserver) OnFatal(err error) {
	o.logger.Error("fatal session error", slog.String("error", err.Error()))
}
