package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"huddle/hub/store"
)

// handleFile serves one file-exchange connection: a single command line,
// then an optional body, then the connection closes. Bytes read past the
// command newline belong to an upload body and are preserved by the
// buffered reader. Filenames are opaque — never interpreted as paths.
func (h *Hub) handleFile(conn net.Conn) {
	defer conn.Close()
	br := bufio.NewReader(conn)

	line, err := readLine(br)
	if err != nil {
		return
	}
	switch {
	case strings.HasPrefix(line, "UPLOAD:"):
		h.fileUpload(conn, br, line[len("UPLOAD:"):])
	case strings.HasPrefix(line, "DOWNLOAD:"):
		h.fileDownload(conn, line[len("DOWNLOAD:"):])
	case strings.HasPrefix(line, "DELETE:"):
		h.fileDelete(conn, line[len("DELETE:"):])
	default:
		fmt.Fprintf(conn, "ERROR:unknown command\n")
	}
}

// fileUpload handles UPLOAD:<pid>:<filename>:<size> followed by exactly
// <size> body bytes. Oversized declarations are rejected before any body is
// read; a short body discards the upload.
func (h *Hub) fileUpload(conn net.Conn, br *bufio.Reader, rest string) {
	parts := strings.SplitN(rest, ":", 3)
	if len(parts) != 3 {
		fmt.Fprintf(conn, "ERROR:malformed upload\n")
		return
	}
	pid64, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		fmt.Fprintf(conn, "ERROR:bad participant id\n")
		return
	}
	pid := uint32(pid64)
	filename := parts[1]
	size, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || size < 0 {
		fmt.Fprintf(conn, "ERROR:bad size\n")
		return
	}
	if size > MaxFileSize {
		fmt.Fprintf(conn, "ERROR:file too large\n")
		return
	}
	uploader, ok := h.reg.Lookup(pid)
	if !ok {
		fmt.Fprintf(conn, "ERROR:unknown participant\n")
		return
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(br, data); err != nil {
		slog.Debug("upload truncated", "pid", pid, "file", filename, "err", err)
		fmt.Fprintf(conn, "ERROR:incomplete upload\n")
		return
	}

	id, err := h.store.AddFile(filename, pid, uploader.Username, data)
	if err != nil {
		slog.Warn("store upload", "err", err)
		fmt.Fprintf(conn, "ERROR:storage failure\n")
		return
	}
	h.syncFileGauge()
	slog.Info("file uploaded", "id", id, "name", filename, "size", size, "by", pid)
	fmt.Fprintf(conn, "SUCCESS:%d\n", id)

	h.reg.BroadcastLine(buildFileOfferNotice(id, filename, size, uploader.Username, pid))
}

// fileDownload handles DOWNLOAD:<file-id>: a FILE header line, then the raw
// bytes. The write blocks only this connection's worker.
func (h *Hub) fileDownload(conn net.Conn, rest string) {
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		fmt.Fprintf(conn, "ERROR:File not found\n")
		return
	}
	f, err := h.store.GetFile(id)
	if err != nil {
		fmt.Fprintf(conn, "ERROR:File not found\n")
		return
	}
	if _, err := fmt.Fprintf(conn, "FILE:%s:%d\n", f.Name, f.Size); err != nil {
		return
	}
	if _, err := conn.Write(f.Data); err != nil {
		slog.Debug("download aborted", "file", id, "err", err)
	}
}

// fileDelete handles DELETE:<file-id>:<pid>. Only the uploader may delete.
func (h *Hub) fileDelete(conn net.Conn, rest string) {
	idPart, pidPart, ok := strings.Cut(rest, ":")
	if !ok {
		fmt.Fprintf(conn, "ERROR:malformed delete\n")
		return
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		fmt.Fprintf(conn, "ERROR:File not found\n")
		return
	}
	pid, err := strconv.ParseUint(pidPart, 10, 32)
	if err != nil {
		fmt.Fprintf(conn, "ERROR:bad participant id\n")
		return
	}

	switch err := h.store.DeleteFile(id, uint32(pid)); {
	case errors.Is(err, store.ErrFileNotFound):
		fmt.Fprintf(conn, "ERROR:File not found\n")
	case errors.Is(err, store.ErrNotUploader):
		fmt.Fprintf(conn, "ERROR:only the uploader may delete a file\n")
	case err != nil:
		slog.Warn("store delete", "file", id, "err", err)
		fmt.Fprintf(conn, "ERROR:storage failure\n")
	default:
		h.syncFileGauge()
		slog.Info("file deleted", "id", id, "by", pid)
		fmt.Fprintf(conn, "DELETE_SUCCESS:%d\n", id)
		h.reg.BroadcastLine(buildFileDeletedNotice(id))
	}
}

func (h *Hub) syncFileGauge() {
	if n, err := h.store.FileCount(); err == nil {
		filesStored.Set(float64(n))
	}
}
