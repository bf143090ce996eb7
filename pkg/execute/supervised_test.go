package execute

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSupervisedCompletes(t *testing.T) {
	s, err := Start(context.Background(), "sh", "-c", "echo progress; echo done")
	if err != nil {
		t.Fatal(err)
	}

	res := s.Wait()
	if !res.Success() {
		t.Fatalf("result = %s", res)
	}
	if !strings.Contains(string(res.Stdout), "done") {
		t.Errorf("stdout = %q", res.Stdout)
	}

	select {
	case <-s.Done():
	default:
		t.Error("Done channel not closed after Wait")
	}
}

func TestSupervisedSnapshotDuringRun(t *testing.T) {
	s, err := Start(context.Background(), "sh", "-c", "echo early; sleep 5")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Terminate()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(string(s.Snapshot()), "early") {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("output not observable while the process is still running")
}

func TestSupervisedTerminate(t *testing.T) {
	s, err := Start(context.Background(), "sh", "-c", "sleep 60")
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	s.Terminate()
	res := s.Wait()

	if time.Since(start) > 10*time.Second {
		t.Fatal("terminate did not stop the process promptly")
	}
	if res.Success() {
		t.Error("terminated process reported success")
	}

	// Safe to call again after the process is gone.
	s.Terminate()
}

func TestSupervisedKillsProcessGroup(t *testing.T) {
	// The child spawns its own grandchild; terminating must take down the
	// whole group, not just the shell.
	s, err := Start(context.Background(), "sh", "-c", "sleep 60 & wait")
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(100 * time.Millisecond)
	s.Terminate()

	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("process group still alive after Terminate")
	}
}

func TestSupervisedTerminateConcurrentWithExit(t *testing.T) {
	// Terminate from another goroutine while the process is exiting on its
	// own; the result must be consistent whichever side wins.
	for i := 0; i < 20; i++ {
		s, err := Start(context.Background(), "sh", "-c", "exit 0")
		if err != nil {
			t.Fatal(err)
		}

		done := make(chan struct{})
		go func() {
			s.Terminate()
			close(done)
		}()

		res := s.Wait()
		<-done

		if res == nil {
			t.Fatal("Wait returned no result")
		}
		// Either the clean exit or the kill wins; nothing else is valid.
		if !res.Success() && !errors.Is(res.Err, ErrCanceled) {
			t.Fatalf("inconsistent result: %s", res)
		}
	}
}

func TestSupervisedContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	s, err := Start(ctx, "sh", "-c", "sleep 60")
	if err != nil {
		t.Fatal(err)
	}

	cancel()
	res := s.Wait()
	if res.Success() {
		t.Error("canceled process reported success")
	}
}

func TestSupervisedStartErrors(t *testing.T) {
	if _, err := Start(context.Background(), ""); err == nil {
		t.Error("empty command accepted")
	}
	if _, err := Start(context.Background(), "/nonexistent/not-a-binary"); err == nil {
		t.Error("missing binary accepted")
	}
}
