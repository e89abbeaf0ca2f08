package main

import (
	"log/slog"

	"github.com/Versifine/portfwd/internal/event"
)

func logEvents(bus *event.Bus) {
	bus.Subscribe(event.EventPairOpen, func(raw any) {
		e, ok := raw.(*event.PairOpenEvent)
		if !ok {
			return
		}
		slog.Debug("Pair opened", "pair", e.ID, "client", e.Client, "target", e.Target)
	})
	bus.Subscribe(event.EventPairClose, func(raw any) {
		e, ok := raw.(*event.PairCloseEvent)
		if !ok {
			return
		}
		slog.Debug("Pair closed", "pair", e.ID, "client", e.Client,
			"sent", e.Sent, "received", e.Received, "duration", e.Duration)
	})
	bus.Subscribe(event.EventDialFail, func(raw any) {
		e, ok := raw.(*event.DialFailEvent)
		if !ok {
			return
		}
		slog.Warn("Error connecting to target", "client", e.Client, "target", e.Target, "error", e.Err)
	})
}
