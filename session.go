package main

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"
)

// handleControl serves one control session for its whole lifetime: join
// handshake, then a mix of inbound commands and server-push notices until
// the stream closes. A parse failure drops the offending line and keeps
// reading; a read error tears the participant down.
func (h *Hub) handleControl(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)

	// The first line must be the join handshake.
	line, err := readLine(reader)
	if err != nil {
		return
	}
	rest, ok := strings.CutPrefix(line, "CONNECT:")
	if !ok {
		slog.Debug("control stream without CONNECT", "from", conn.RemoteAddr())
		return
	}
	username, err := validateName(rest, MaxNameLength)
	if err != nil {
		conn.Write([]byte("ERROR:" + err.Error() + "\n"))
		return
	}

	p, err := h.reg.Register(conn, username)
	if err != nil {
		if errors.Is(err, ErrHubFull) {
			conn.Write([]byte("ERROR:server full\n"))
		}
		return
	}
	defer h.teardown(p)

	if err := p.SendLine("ID:" + strconv.FormatUint(uint64(p.ID), 10)); err != nil {
		return
	}
	// Roster notice is issued after the registry change committed.
	h.reg.BroadcastRoster()

	for {
		line, err := readLine(reader)
		if err != nil {
			if err != io.EOF {
				slog.Debug("control read", "id", p.ID, "err", err)
			}
			return
		}
		h.dispatch(p, line)
	}
}

// readLine returns the next newline-terminated control line without its
// terminator (a trailing \r is tolerated).
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// dispatch handles one inbound control command. Unknown or malformed lines
// are dropped; the session keeps reading.
func (h *Hub) dispatch(p *Participant, line string) {
	switch {
	case line == "PING":
		p.SendLine("PONG")

	case strings.HasPrefix(line, "CHAT:"):
		h.handleChat(p, line[len("CHAT:"):])

	case strings.HasPrefix(line, "PRIVATE_CHAT:"):
		h.handlePrivateChat(p, line[len("PRIVATE_CHAT:"):])

	case line == "REQUEST_PRESENTER":
		granted, holder := h.screen.Acquire(p.ID, nil)
		if granted {
			slog.Info("presenter lease granted", "id", p.ID)
			h.reg.BroadcastLine(buildPresenterNotice(p.ID))
		} else {
			// Denied: only the requester learns the current holder.
			p.SendLine(buildPresenterNotice(holder))
		}

	case line == "STOP_PRESENTING":
		if h.screen.Release(p.ID) {
			slog.Info("presenter stopped", "id", p.ID)
			h.reg.BroadcastLine(presenterNoneNotice)
		}

	default:
		slog.Debug("unknown control command", "id", p.ID, "line", line)
	}
}

// handleChat fans a public chat message out to every live participant,
// sender included, so everyone observes the same authoritative ordering.
func (h *Hub) handleChat(p *Participant, text string) {
	now := time.Now()
	if err := h.store.AppendChat(p.ID, p.Username, text, now); err != nil {
		slog.Warn("chat history append", "err", err)
	}
	chatMessages.Inc()
	h.reg.BroadcastLine(buildChatNotice(p.ID, p.Username, wallClock(now), text))
}

// handlePrivateChat delivers a private message to each listed recipient and
// echoes it to the sender. Recipients that are not joined are skipped.
func (h *Hub) handlePrivateChat(p *Participant, rest string) {
	ids, text, err := parsePrivateChat(rest)
	if err != nil {
		slog.Debug("malformed private chat", "id", p.ID, "err", err)
		return
	}
	notice := buildPrivateChatNotice(p.ID, p.Username, wallClock(time.Now()), ids, text)

	delivered := map[uint32]bool{p.ID: true}
	p.SendLine(notice)
	for _, id := range ids {
		if delivered[id] {
			continue
		}
		delivered[id] = true
		if rcpt, ok := h.reg.Lookup(id); ok {
			rcpt.SendLine(notice)
		}
	}
}

// teardown runs when a control session ends for any reason: deregister,
// drop buffered media, release the presenter lease if held, and broadcast
// the new roster. Idempotent via Deregister.
func (h *Hub) teardown(p *Participant) {
	if h.reg.Deregister(p.ID) == nil {
		return
	}
	h.video.Remove(p.ID)
	h.audio.Remove(p.ID)
	if h.screen.Release(p.ID) {
		h.reg.BroadcastLine(presenterNoneNotice)
	}
	h.reg.BroadcastRoster()
}
