package core

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/iluobei/miaomiaowu-sub001/database"
	"github.com/iluobei/miaomiaowu-sub001/models"
)

func localListener(t *testing.T) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func TestCheckReachableNode(t *testing.T) {
	host, port := localListener(t)
	checker := NewNodeChecker("", time.Second)

	result := checker.Check(context.Background(), models.Node{ID: 7, Name: "local", Server: host, Port: port})
	if !result.Alive || result.Error != "" {
		t.Fatalf("result = %+v, want alive", result)
	}
	if result.NodeID != 7 || result.Name != "local" {
		t.Errorf("result identity = %d/%s", result.NodeID, result.Name)
	}
	if result.LatencyMs < 0 {
		t.Errorf("latency = %dms", result.LatencyMs)
	}
}

func TestCheckUnreachableNode(t *testing.T) {
	// Grab a free port, then close the listener so nothing answers there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	checker := NewNodeChecker("", 500*time.Millisecond)
	result := checker.Check(context.Background(), models.Node{Name: "gone", Server: "127.0.0.1", Port: port})
	if result.Alive {
		t.Fatalf("dial against a closed port reported alive")
	}
	if result.Error == "" {
		t.Errorf("no error recorded for a failed dial")
	}
}

func TestCheckAndStoreRecordsOutcome(t *testing.T) {
	initTestDB(t)
	host, port := localListener(t)

	id, inserted, err := database.CreateNode(models.Node{Name: "local", Protocol: "ss", Server: host, Port: port})
	if err != nil || !inserted {
		t.Fatalf("CreateNode = (%d, %v, %v)", id, inserted, err)
	}
	node, err := database.GetNodeByID(id)
	if err != nil {
		t.Fatalf("GetNodeByID: %v", err)
	}

	checker := NewNodeChecker("", time.Second)
	result := checker.CheckAndStore(context.Background(), node)
	if !result.Alive {
		t.Fatalf("check against the local listener failed: %s", result.Error)
	}

	stored, err := database.GetNodeByID(id)
	if err != nil {
		t.Fatalf("GetNodeByID after check: %v", err)
	}
	if stored.Alive == nil || !*stored.Alive {
		t.Errorf("stored alive flag = %v, want true", stored.Alive)
	}
	if stored.LatencyMs == nil {
		t.Errorf("stored latency missing")
	}
	if stored.LastCheckedAt == nil {
		t.Errorf("stored check timestamp missing")
	}
}
