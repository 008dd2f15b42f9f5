package main

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// The control protocol is newline-delimited UTF-8 text. Client commands:
//
//	CONNECT:<username>
//	PING
//	CHAT:<text>
//	PRIVATE_CHAT:<id>(,<id>)*:<text>
//	REQUEST_PRESENTER
//	STOP_PRESENTING
//
// Server notices:
//
//	ID:<u32>
//	PONG
//	USERS:<hex>
//	CHAT:<u32>:<name>:<HH:MM:SS>:<text>
//	PRIVATE_CHAT:<u32>|<name>|<HH:MM:SS>|<csv-ids>|<text>
//	PRESENTER:<u32> | PRESENTER:None
//	FILE_OFFER:<u32>:<filename>:<u64>:<uploader-name>:<u32>
//	FILE_DELETED:<u32>
//
// Public chat uses ':' separators with a fixed prefix arity, so the message
// body may itself contain ':'. Private chat switches to '|' because the
// timestamp field contains colons. Parsers must split with a limit and never
// split the trailing text field.

// validateName trims whitespace from s and returns the trimmed string, or an
// error if the result is empty or exceeds maxLen bytes.
func validateName(s string, maxLen int) (string, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return "", fmt.Errorf("name must not be empty")
	case len(s) > maxLen:
		return "", fmt.Errorf("name must not exceed %d characters", maxLen)
	}
	return s, nil
}

// wallClock formats a timestamp the way chat notices carry it.
func wallClock(t time.Time) string {
	return t.Format("15:04:05")
}

// RosterEntry is one participant in a USERS broadcast, in join order.
type RosterEntry struct {
	ID       uint32
	Username string
}

// encodeRoster serializes the roster into the USERS wire body: hex of
// uvarint(count), then per record uvarint(id), uvarint(len(name)), raw name
// bytes. Join order makes the encoding deterministic.
func encodeRoster(entries []RosterEntry) string {
	buf := binary.AppendUvarint(nil, uint64(len(entries)))
	for _, e := range entries {
		buf = binary.AppendUvarint(buf, uint64(e.ID))
		buf = binary.AppendUvarint(buf, uint64(len(e.Username)))
		buf = append(buf, e.Username...)
	}
	return hex.EncodeToString(buf)
}

// decodeRoster parses the USERS wire body produced by encodeRoster.
func decodeRoster(body string) ([]RosterEntry, error) {
	raw, err := hex.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("roster hex: %w", err)
	}
	count, n := binary.Uvarint(raw)
	if n <= 0 {
		return nil, fmt.Errorf("roster count: truncated")
	}
	raw = raw[n:]
	entries := make([]RosterEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		id, n := binary.Uvarint(raw)
		if n <= 0 {
			return nil, fmt.Errorf("roster entry %d: truncated id", i)
		}
		raw = raw[n:]
		nameLen, n := binary.Uvarint(raw)
		if n <= 0 || uint64(len(raw[n:])) < nameLen {
			return nil, fmt.Errorf("roster entry %d: truncated name", i)
		}
		raw = raw[n:]
		entries = append(entries, RosterEntry{ID: uint32(id), Username: string(raw[:nameLen])})
		raw = raw[nameLen:]
	}
	return entries, nil
}

func buildUsersNotice(entries []RosterEntry) string {
	return "USERS:" + encodeRoster(entries)
}

func buildChatNotice(senderID uint32, sender, clock, text string) string {
	return fmt.Sprintf("CHAT:%d:%s:%s:%s", senderID, sender, clock, text)
}

func buildPrivateChatNotice(senderID uint32, sender, clock string, recipients []uint32, text string) string {
	ids := make([]string, len(recipients))
	for i, id := range recipients {
		ids[i] = strconv.FormatUint(uint64(id), 10)
	}
	return fmt.Sprintf("PRIVATE_CHAT:%d|%s|%s|%s|%s", senderID, sender, clock, strings.Join(ids, ","), text)
}

func buildPresenterNotice(id uint32) string {
	return fmt.Sprintf("PRESENTER:%d", id)
}

const presenterNoneNotice = "PRESENTER:None"

func buildFileOfferNotice(fileID int64, filename string, size int64, uploader string, uploaderID uint32) string {
	return fmt.Sprintf("FILE_OFFER:%d:%s:%d:%s:%d", fileID, filename, size, uploader, uploaderID)
}

func buildFileDeletedNotice(fileID int64) string {
	return fmt.Sprintf("FILE_DELETED:%d", fileID)
}

// parsePrivateChat splits the tail of PRIVATE_CHAT:<csv-ids>:<text>.
// Only the first ':' after the recipient list is a separator; the text may
// contain further colons.
func parsePrivateChat(rest string) ([]uint32, string, error) {
	idsPart, text, ok := strings.Cut(rest, ":")
	if !ok {
		return nil, "", fmt.Errorf("private chat: missing text field")
	}
	fields := strings.Split(idsPart, ",")
	ids := make([]uint32, 0, len(fields))
	for _, f := range fields {
		id, err := strconv.ParseUint(strings.TrimSpace(f), 10, 32)
		if err != nil {
			return nil, "", fmt.Errorf("private chat: recipient %q: %w", f, err)
		}
		ids = append(ids, uint32(id))
	}
	return ids, text, nil
}
