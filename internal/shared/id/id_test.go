package id

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestGenerate(t *testing.T) {
	gen := NewGenerator()

	id1 := gen.Generate()
	id2 := gen.Generate()

	if id1.String() == id2.String() {
		t.Error("Generated IDs should be unique")
	}
}

func TestNewExecutionID(t *testing.T) {
	exec := NewExecutionID()

	if !strings.HasPrefix(exec.String(), ExecutionPrefix+"_") {
		t.Errorf("execution ID should start with %q, got %s", ExecutionPrefix+"_", exec)
	}
	if !IsExecutionID(exec.String()) {
		t.Errorf("execution ID should validate: %s", exec)
	}
	if IsExecutionID("call_" + Default().Generate().String()) {
		t.Error("foreign prefix should not validate as execution ID")
	}
}

func TestExecutionIDTimestamp(t *testing.T) {
	before := time.Now().Add(-time.Second)
	exec := NewExecutionID()

	ts, err := Timestamp(exec.String())
	if err != nil {
		t.Fatalf("Timestamp() error = %v", err)
	}
	if ts.Before(before) || ts.After(time.Now().Add(time.Second)) {
		t.Errorf("timestamp %v out of range", ts)
	}
}

func TestCallIDAndToken(t *testing.T) {
	if NewCallID() == NewCallID() {
		t.Error("call IDs should be unique")
	}

	token := Token()
	if len(token) != 32 || strings.Contains(token, "-") {
		t.Errorf("token should be 32 hex characters, got %q", token)
	}
}

func TestConcurrentGeneration(t *testing.T) {
	const workers, perWorker = 8, 200

	var (
		mu   sync.Mutex
		seen = make(map[ExecutionID]bool)
		wg   sync.WaitGroup
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				exec := NewExecutionID()
				mu.Lock()
				seen[exec] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Errorf("expected %d unique IDs, got %d", workers*perWorker, len(seen))
	}
}
