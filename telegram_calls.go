package main

import (
	"strconv"
	"time"

	client "github.com/zelenin/go-tdlib/client"

	"callaudio/bridge"
	"callaudio/call"
)

func telegramKey(id int32) string { return "tg:" + strconv.Itoa(int(id)) }

// telegramEvent maps a tdlib call update to a lifecycle event. Outgoing
// calls alert once the peer has received them; Telegram gives no network
// ringback, so it is generated locally.
func telegramEvent(c *client.Call, number string) (bridge.Event, bool) {
	if c == nil {
		return bridge.Event{}, false
	}
	ev := bridge.Event{Key: telegramKey(c.Id), Number: number, Kind: call.KindOTT}
	switch st := c.State.(type) {
	case *client.CallStatePending:
		switch {
		case !c.IsOutgoing:
			ev.State = call.StateIncoming
		case st.IsReceived:
			ev.State = call.StateAlerting
			ev.LocalRingback = true
		default:
			ev.State = call.StateDialing
		}
	case *client.CallStateReady:
		ev.State = call.StateActive
	case *client.CallStateHangingUp:
		ev.State = call.StateDisconnecting
	case *client.CallStateDiscarded, *client.CallStateError:
		ev.State = call.StateDisconnected
	default:
		// exchanging keys: no audio change until ready
		return ev, false
	}
	return ev, true
}

// acceptTelegramCall accepts an incoming Telegram call.
func acceptTelegramCall(cl *client.Client, callID int32) error {
	protocol := &client.CallProtocol{UdpP2p: true, UdpReflector: true, MinLayer: 65, MaxLayer: 92}
	_, err := cl.AcceptCall(&client.AcceptCallRequest{CallId: callID, Protocol: protocol})
	return err
}

// scheduleTelegramAnswer accepts callID after delay if it is still
// ringing.
func (g *Gateway) scheduleTelegramAnswer(callID int32, delay time.Duration) {
	time.AfterFunc(delay, func() {
		rec, ok := g.registry.Lookup(telegramKey(callID))
		if !ok {
			return
		}
		if st := rec.State(); st != call.StateIncoming && st != call.StateWaiting {
			return
		}
		if err := acceptTelegramCall(g.tgClient, callID); err != nil {
			tgLog.WithError(err).WithField("call", callID).Warn("accept call failed")
			return
		}
		tgLog.WithField("call", callID).Info("telegram call accepted")
	})
}

// handleTelegramCall applies one UpdateCall.
func (g *Gateway) handleTelegramCall(c *client.Call) {
	if c == nil {
		return
	}
	number := g.contacts.Number(c.UserId)
	ev, ok := telegramEvent(c, number)
	if !ok {
		return
	}
	_, known := g.registry.Lookup(ev.Key)
	tgLog.WithField("call", c.Id).WithField("state", ev.State).Info("telegram call update")
	g.registry.Apply(ev)
	if !known && ev.State == call.StateIncoming && g.settings.TelegramAutoAnswer() > 0 {
		g.scheduleTelegramAnswer(c.Id, g.settings.TelegramAutoAnswer())
	}
}
