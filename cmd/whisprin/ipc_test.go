//go:build !windows

package main

import (
	"path/filepath"
	"sync"
	"testing"
)

// mockController records applied actions for transport tests.
type mockController struct {
	mu      sync.Mutex
	applied []Action
	status  StatusSnapshot
}

func (c *mockController) Apply(a Action) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applied = append(c.applied, a)
}

func (c *mockController) Status() StatusSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// TestIPC_RoundTrip tests the full client/server exchange over a real
// socket: action delivery and the ok response.
func TestIPC_RoundTrip(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "whisprin-test.sock")
	ctrl := &mockController{}

	closeSrv, err := runIPCServer(sock, ctrl, discardLogger())
	if err != nil {
		t.Fatalf("runIPCServer() = %v", err)
	}
	defer closeSrv()

	resp, err := SendIPCAction(sock, SetVolumeOffset{Db: -4})
	if err != nil {
		t.Fatalf("SendIPCAction() = %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("response status = %q, want ok", resp.Status)
	}

	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	if len(ctrl.applied) != 1 {
		t.Fatalf("applied %d actions, want 1", len(ctrl.applied))
	}
	a, ok := ctrl.applied[0].(SetVolumeOffset)
	if !ok || a.Db != -4 {
		t.Errorf("applied = %v, want SetVolumeOffset{-4}", ctrl.applied[0])
	}
}

// TestIPC_StatusInline tests that a status request is answered with the
// snapshot instead of being forwarded as an action.
func TestIPC_StatusInline(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "whisprin-test.sock")
	ctrl := &mockController{status: StatusSnapshot{
		Enabled:        true,
		ActiveProvider: "rawhid",
		OffsetDb:       -3,
		Playing:        true,
		LastPressure:   0.42,
	}}

	closeSrv, err := runIPCServer(sock, ctrl, discardLogger())
	if err != nil {
		t.Fatalf("runIPCServer() = %v", err)
	}
	defer closeSrv()

	resp, err := SendIPCAction(sock, RequestStatus{})
	if err != nil {
		t.Fatalf("SendIPCAction() = %v", err)
	}
	if resp.Snapshot == nil {
		t.Fatal("status response carried no snapshot")
	}
	if resp.Snapshot.ActiveProvider != "rawhid" || resp.Snapshot.LastPressure != 0.42 {
		t.Errorf("snapshot = %+v", resp.Snapshot)
	}

	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	if len(ctrl.applied) != 0 {
		t.Errorf("status request should not be forwarded as an action, got %v", ctrl.applied)
	}
}
