package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
)

// ============================================================================
// IPC Server - Unix Domain Socket Interface
// ============================================================================
// External clients control the daemon over a Unix domain socket:
//   - enable/disable from scripts or hotkey tools
//   - volume offset adjustment
//   - status queries (the whisprin sendctl subcommand uses this)
//
// Protocol: line-delimited JSON
//   - Client sends: {"type": "action_name", "data": {...}}
//   - Server responds: {"status": "ok"} or {"status": "error", "error": "msg"}
//   - For {"type": "status"} the ok response carries the snapshot inline.
// ============================================================================

// Controller is the daemon surface the IPC and WebSocket layers drive.
type Controller interface {
	Apply(Action)
	Status() StatusSnapshot
}

// IPCResponse is the reply sent back to IPC clients.
type IPCResponse struct {
	Status   string          `json:"status"`
	Error    string          `json:"error,omitempty"`
	Snapshot *StatusSnapshot `json:"snapshot,omitempty"`
}

// runIPCServer starts the Unix domain socket server. The returned close
// function stops the accept loop and removes the socket file.
func runIPCServer(socketPath string, ctrl Controller, logger *slog.Logger) (func(), error) {
	if err := os.RemoveAll(socketPath); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", socketPath, err)
	}

	if err := os.Chmod(socketPath, 0666); err != nil {
		listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	logger.Info("IPC listening", "socket", socketPath)

	go func() {
		defer os.Remove(socketPath)

		for {
			conn, err := listener.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					logger.Debug("IPC listener closed")
					return
				}
				logger.Warn("IPC accept error", "error", err)
				continue
			}
			go handleIPCConnection(conn, ctrl, logger)
		}
	}()

	return func() { listener.Close() }, nil
}

func handleIPCConnection(conn net.Conn, ctrl Controller, logger *slog.Logger) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		logger.Debug("IPC received", "payload", string(line))

		action, err := UnmarshalAction(line)
		if err != nil {
			respond(encoder, IPCResponse{Status: "error", Error: fmt.Sprintf("parse action: %v", err)}, logger)
			continue
		}

		if _, ok := action.(RequestStatus); ok {
			snap := ctrl.Status()
			respond(encoder, IPCResponse{Status: "ok", Snapshot: &snap}, logger)
			continue
		}

		ctrl.Apply(action)
		respond(encoder, IPCResponse{Status: "ok"}, logger)
	}

	if err := scanner.Err(); err != nil {
		logger.Warn("IPC scanner error", "error", err)
	}
}

func respond(encoder *json.Encoder, r IPCResponse, logger *slog.Logger) {
	if err := encoder.Encode(r); err != nil {
		logger.Warn("IPC response write failed", "error", err)
	}
}

// ============================================================================
// IPC Client
// ============================================================================

// SendIPCAction sends one action to a running daemon and returns its
// response. Used by the sendctl subcommand and by tests.
func SendIPCAction(socketPath string, action Action) (IPCResponse, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	data, err := MarshalAction(action)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("marshal action: %w", err)
	}

	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return IPCResponse{}, fmt.Errorf("send action: %w", err)
	}

	var response IPCResponse
	if err := json.NewDecoder(conn).Decode(&response); err != nil {
		return IPCResponse{}, fmt.Errorf("decode response: %w", err)
	}
	if response.Status == "error" {
		return response, fmt.Errorf("daemon error: %s", response.Error)
	}
	return response, nil
}
