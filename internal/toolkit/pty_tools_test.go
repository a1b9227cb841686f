package toolkit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mikesmullin/daemon-sub001/internal/ptymgr"
)

func TestPTYToolsRoundTripCreateWriteReadClose(t *testing.T) {
	manager := ptymgr.NewManager(0, nil)
	registry := NewRegistry()
	RegisterPTYTools(registry, manager)

	for _, name := range []string{"pty_create", "pty_write", "pty_read", "pty_close"} {
		if _, ok := registry.Get(name); !ok {
			t.Fatalf("expected %q to be registered", name)
		}
	}

	create, _ := registry.Get("pty_create")
	createResult, err := create.Execute(context.Background(), json.RawMessage(`{"command":"cat"}`))
	if err != nil || !createResult.Success {
		t.Fatalf("pty_create failed: %v %+v", err, createResult)
	}
	ptyID := createResult.Content
	if ptyID == "" {
		t.Fatal("expected a non-empty pty id")
	}

	write, _ := registry.Get("pty_write")
	writeArgs, _ := json.Marshal(map[string]string{"pty_id": ptyID, "data": "hello\n"})
	writeResult, err := write.Execute(context.Background(), writeArgs)
	if err != nil || !writeResult.Success {
		t.Fatalf("pty_write failed: %v %+v", err, writeResult)
	}

	time.Sleep(100 * time.Millisecond)

	read, _ := registry.Get("pty_read")
	readArgs, _ := json.Marshal(struct {
		PTYID string `json:"pty_id"`
		Lines int    `json:"lines"`
	}{ptyID, 10})
	readResult, err := read.Execute(context.Background(), readArgs)
	if err != nil || !readResult.Success {
		t.Fatalf("pty_read failed: %v %+v", err, readResult)
	}
	if readResult.Content == "" {
		t.Fatal("expected cat to echo the written line back into scrollback")
	}

	close_, _ := registry.Get("pty_close")
	closeArgs, _ := json.Marshal(map[string]string{"pty_id": ptyID})
	closeResult, err := close_.Execute(context.Background(), closeArgs)
	if err != nil || !closeResult.Success {
		t.Fatalf("pty_close failed: %v %+v", err, closeResult)
	}
}

func TestPTYWriteRequiresDataOrKey(t *testing.T) {
	manager := ptymgr.NewManager(0, nil)
	tool := PTYWriteTool{Manager: manager}
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"pty_id":"missing"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure when neither data nor key is provided")
	}
}
