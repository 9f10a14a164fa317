package bridge

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	gosip "github.com/ghettovoice/gosip"
	"github.com/ghettovoice/gosip/sip"
	"github.com/ghettovoice/gosip/sip/parser"
	"github.com/ghettovoice/gosip/util"
	"github.com/sirupsen/logrus"

	"callaudio/call"
)

// SIPServer is the subset of gosip.Server the bridge uses.
type SIPServer interface {
	OnRequest(method sip.RequestMethod, handler gosip.RequestHandler) error
	Request(req sip.Request) (sip.ClientTransaction, error)
	Send(msg sip.Message) error
}

// SIP maps SIP dialogs to IP call events.
type SIP struct {
	srv        SIPServer
	emit       func(Event)
	autoAnswer time.Duration
	log        *logrus.Entry

	mu       sync.Mutex
	sessions map[string]*sipSession
}

type sipSession struct {
	callID     string
	number     string
	localAddr  *sip.Address
	remoteAddr *sip.Address
	cseq       uint
	answered   bool
	serverTx   sip.ServerTransaction
	inviteReq  sip.Request
}

// NewSIP creates a SIP bridge. Incoming calls are answered after
// autoAnswer; zero leaves them ringing until the caller gives up.
func NewSIP(srv SIPServer, emit func(Event), autoAnswer time.Duration, log *logrus.Entry) *SIP {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &SIP{
		srv:        srv,
		emit:       emit,
		autoAnswer: autoAnswer,
		log:        log,
		sessions:   make(map[string]*sipSession),
	}
}

// SIPKey is the registry key of a SIP call.
func SIPKey(callID string) string { return "sip:" + callID }

// Register installs the request handlers.
func (s *SIP) Register() error {
	handlers := map[sip.RequestMethod]gosip.RequestHandler{
		sip.INVITE: s.handleInvite,
		sip.ACK:    s.handleAck,
		sip.CANCEL: s.handleCancel,
		sip.BYE:    s.handleBye,
		sip.INFO:   s.handleInfo,
	}
	for method, h := range handlers {
		if err := s.srv.OnRequest(method, h); err != nil {
			return fmt.Errorf("sip handler %s: %w", method, err)
		}
	}
	return nil
}

func callIDOf(req sip.Request) string {
	if cid, ok := req.CallID(); ok && cid != nil {
		// String renders the whole header line
		return cid.Value()
	}
	return ""
}

func userOf(uri sip.Uri) string {
	if uri == nil {
		return ""
	}
	if u := uri.User(); u != nil {
		return u.String()
	}
	return ""
}

func respond(tx sip.ServerTransaction, req sip.Request, code sip.StatusCode, reason string) {
	if tx == nil {
		return
	}
	res := sip.NewResponseFromRequest("", req, code, reason, "")
	_ = tx.Respond(res)
}

func (s *SIP) handleInvite(req sip.Request, tx sip.ServerTransaction) {
	callID := callIDOf(req)
	fromHdr, _ := req.From()
	toHdr, _ := req.To()
	if callID == "" || fromHdr == nil || toHdr == nil {
		s.log.Warn("malformed INVITE")
		respond(tx, req, 400, "Bad Request")
		return
	}
	number := userOf(fromHdr.Address)
	s.log.WithFields(logrus.Fields{"call_id": callID, "from": number}).Info("received SIP INVITE")

	sess := &sipSession{
		callID:     callID,
		number:     number,
		localAddr:  sip.NewAddressFromToHeader(toHdr),
		remoteAddr: sip.NewAddressFromFromHeader(fromHdr),
		cseq:       1,
		serverTx:   tx,
		inviteReq:  req,
	}
	s.mu.Lock()
	_, known := s.sessions[callID]
	if !known {
		s.sessions[callID] = sess
	}
	s.mu.Unlock()
	if known {
		// retransmission
		return
	}

	respond(tx, req, 180, "Ringing")
	s.emit(Event{Key: SIPKey(callID), Number: number, Kind: call.KindIP, State: call.StateIncoming})

	if s.autoAnswer > 0 {
		time.AfterFunc(s.autoAnswer, func() {
			if err := s.Answer(callID); err != nil {
				s.log.WithError(err).Debug("auto answer skipped")
			}
		})
	}
}

// Answer accepts the incoming call callID. The call becomes active when
// the caller acknowledges.
func (s *SIP) Answer(callID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[callID]
	if ok && sess.answered {
		ok = false
	}
	if ok {
		sess.answered = true
	}
	s.mu.Unlock()
	if !ok || sess.inviteReq == nil {
		return fmt.Errorf("call %s not found", callID)
	}

	res := sip.NewResponseFromRequest("", sess.inviteReq, 200, "OK", "")
	tag := util.RandString(8)
	if toHdr, ok := res.To(); ok {
		if toHdr.Params == nil {
			toHdr.Params = sip.NewParams()
		}
		toHdr.Params = toHdr.Params.Add("tag", sip.String{Str: tag})
		if sess.localAddr.Params == nil {
			sess.localAddr.Params = sip.NewParams()
		}
		sess.localAddr.Params = sess.localAddr.Params.Add("tag", sip.String{Str: tag})
	}
	if sess.serverTx != nil {
		if err := sess.serverTx.Respond(res); err != nil {
			return fmt.Errorf("send 200 OK: %w", err)
		}
	}
	s.log.WithField("call_id", callID).Info("SIP call answered")
	return nil
}

func (s *SIP) handleAck(req sip.Request, tx sip.ServerTransaction) {
	callID := callIDOf(req)
	s.mu.Lock()
	sess, ok := s.sessions[callID]
	s.mu.Unlock()
	if !ok || !sess.answered {
		return
	}
	s.emit(Event{Key: SIPKey(callID), Number: sess.number, Kind: call.KindIP, State: call.StateActive})
}

func (s *SIP) handleCancel(req sip.Request, tx sip.ServerTransaction) {
	callID := callIDOf(req)
	respond(tx, req, 200, "OK")
	sess, ok := s.drop(callID)
	if !ok {
		return
	}
	s.log.WithField("call_id", callID).Info("received SIP CANCEL")
	respond(sess.serverTx, sess.inviteReq, 487, "Request Terminated")
	s.emit(Event{Key: SIPKey(callID), Number: sess.number, Kind: call.KindIP, State: call.StateDisconnected})
}

func (s *SIP) handleBye(req sip.Request, tx sip.ServerTransaction) {
	callID := callIDOf(req)
	respond(tx, req, 200, "OK")
	sess, ok := s.drop(callID)
	if !ok {
		return
	}
	s.log.WithField("call_id", callID).Info("received SIP BYE")
	s.emit(Event{Key: SIPKey(callID), Number: sess.number, Kind: call.KindIP, State: call.StateDisconnected})
}

func (s *SIP) handleInfo(req sip.Request, tx sip.ServerTransaction) {
	callID := callIDOf(req)
	respond(tx, req, 200, "OK")
	digits := ParseDTMFRelay(req.Body())
	if digits == "" {
		return
	}
	s.emit(Event{Key: SIPKey(callID), Kind: call.KindIP, Digits: digits})
}

// ParseDTMFRelay extracts the Signal value of an application/dtmf-relay
// body.
func ParseDTMFRelay(body string) string {
	for _, line := range strings.Split(body, "\n") {
		k, v, ok := strings.Cut(strings.TrimSpace(line), "=")
		if ok && strings.EqualFold(strings.TrimSpace(k), "signal") {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func (s *SIP) drop(callID string) (*sipSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[callID]
	if ok {
		delete(s.sessions, callID)
	}
	return sess, ok
}

// Dial starts an outbound call from the local user from to the SIP URI to.
// Provisional and final responses drive the call through alerting to
// active or disconnected until ctx is cancelled.
func (s *SIP) Dial(ctx context.Context, from, to string) error {
	toURI, err := parser.ParseUri(to)
	if err != nil {
		return fmt.Errorf("parse to uri: %w", err)
	}
	fromURI, err := parser.ParseUri(fmt.Sprintf("sip:%s@%s", from, toURI.Host()))
	if err != nil {
		return fmt.Errorf("parse from uri: %w", err)
	}

	fromAddr := &sip.Address{Uri: fromURI, Params: sip.NewParams().Add("tag", sip.String{Str: util.RandString(8)})}
	toAddr := &sip.Address{Uri: toURI, Params: sip.NewParams()}
	req, err := sip.NewRequestBuilder().
		SetMethod(sip.INVITE).
		SetRecipient(toURI).
		SetFrom(fromAddr).
		SetTo(toAddr).
		SetContact(&sip.Address{Uri: fromURI.Clone()}).
		Build()
	if err != nil {
		return fmt.Errorf("build invite: %w", err)
	}
	callID := callIDOf(req)
	number := userOf(toURI)

	tx, err := s.srv.Request(req)
	if err != nil {
		return fmt.Errorf("send invite: %w", err)
	}
	s.mu.Lock()
	s.sessions[callID] = &sipSession{
		callID:     callID,
		number:     number,
		localAddr:  fromAddr,
		remoteAddr: toAddr,
		cseq:       1,
		answered:   true,
	}
	s.mu.Unlock()

	key := SIPKey(callID)
	s.log.WithFields(logrus.Fields{"call_id": callID, "to": to}).Info("SIP dial")
	s.emit(Event{Key: key, Number: number, Kind: call.KindIP, State: call.StateDialing})

	go func() {
		responses, errs := tx.Responses(), tx.Errors()
		for {
			select {
			case <-ctx.Done():
				_ = tx.Cancel()
				s.abandon(key, callID, number)
				return
			case res, ok := <-responses:
				if !ok {
					return
				}
				if res == nil {
					continue
				}
				if ev, ok := s.outboundEvent(key, number, res); ok {
					s.emit(ev)
				}
				if !res.IsProvisional() {
					return
				}
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				s.log.WithError(err).Warn("SIP transaction error")
				s.abandon(key, callID, number)
				return
			}
		}
	}()
	return nil
}

func (s *SIP) abandon(key, callID, number string) {
	if _, ok := s.drop(callID); ok {
		s.emit(Event{Key: key, Number: number, Kind: call.KindIP, State: call.StateDisconnected})
	}
}

// outboundEvent maps a response to an outbound INVITE. A 180 without
// early media asks for local ringback.
func (s *SIP) outboundEvent(key, number string, res sip.Response) (Event, bool) {
	callID := strings.TrimPrefix(key, "sip:")
	ev := Event{Key: key, Number: number, Kind: call.KindIP}
	code := res.StatusCode()
	s.log.WithFields(logrus.Fields{"call_id": callID, "status": code}).Info("received SIP response")

	switch {
	case code == 180 || code == 183:
		ev.State = call.StateAlerting
		ev.LocalRingback = code == 180 && res.Body() == ""
		return ev, true
	case code >= 200 && code < 300:
		s.mu.Lock()
		if sess, ok := s.sessions[callID]; ok {
			if toHdr, ok := res.To(); ok && toHdr.Params != nil {
				if tag, ok := toHdr.Params.Get("tag"); ok {
					sess.remoteAddr.Params = sess.remoteAddr.Params.Add("tag", tag)
				}
			}
		}
		s.mu.Unlock()
		if err := s.ack(callID); err != nil {
			s.log.WithError(err).Warn("send ACK failed")
		}
		ev.State = call.StateActive
		return ev, true
	case code >= 300:
		if _, ok := s.drop(callID); !ok {
			return ev, false
		}
		ev.State = call.StateDisconnected
		return ev, true
	}
	return ev, false
}

func (s *SIP) ack(callID string) error {
	req, err := s.inDialog(callID, sip.ACK, false)
	if err != nil {
		return err
	}
	if s.srv == nil {
		return nil
	}
	return s.srv.Send(req)
}

func (s *SIP) inDialog(callID string, method sip.RequestMethod, next bool) (sip.Request, error) {
	s.mu.Lock()
	sess, ok := s.sessions[callID]
	var seq uint
	if ok {
		if next {
			sess.cseq++
		}
		seq = sess.cseq
	}
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("call %s not found", callID)
	}

	cid := sip.CallID(callID)
	req, err := sip.NewRequestBuilder().
		SetMethod(method).
		SetRecipient(sess.remoteAddr.Uri).
		SetFrom(sess.localAddr).
		SetTo(sess.remoteAddr).
		SetContact(sess.localAddr).
		SetCallID(&cid).
		SetSeqNo(seq).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", method, err)
	}
	return req, nil
}

// Hangup ends callID: an unanswered incoming call is declined, an
// established one gets a BYE.
func (s *SIP) Hangup(callID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[callID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("call %s not found", callID)
	}
	key := SIPKey(callID)

	if !sess.answered {
		s.drop(callID)
		respond(sess.serverTx, sess.inviteReq, 603, "Decline")
		s.emit(Event{Key: key, Number: sess.number, Kind: call.KindIP, State: call.StateDisconnected})
		return nil
	}

	req, err := s.inDialog(callID, sip.BYE, true)
	if err != nil {
		return err
	}
	s.drop(callID)
	s.emit(Event{Key: key, Number: sess.number, Kind: call.KindIP, State: call.StateDisconnecting})
	defer s.emit(Event{Key: key, Number: sess.number, Kind: call.KindIP, State: call.StateDisconnected})
	if s.srv == nil {
		return nil
	}
	if _, err := s.srv.Request(req); err != nil {
		return fmt.Errorf("send BYE: %w", err)
	}
	return nil
}

// HangupAll ends every dialog, for shutdown.
func (s *SIP) HangupAll() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		if err := s.Hangup(id); err != nil {
			s.log.WithError(err).WithField("call_id", id).Warn("hangup failed")
		}
	}
}

// Sessions returns the number of live dialogs.
func (s *SIP) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
