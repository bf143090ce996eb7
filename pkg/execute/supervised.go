package execute

import (
	"bytes"
	"context"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// termGrace SIGTERM 之后等待多久再升级为 SIGKILL
const termGrace = 3 * time.Second

// Supervised 受监管的长时进程。与 Command 系列不同，Start 立即返回，
// 输出在进程运行期间可以随时通过 Snapshot 读取，Terminate 会杀掉
// 整个进程组，保证擦除类工具不会脱管残留。
type Supervised struct {
	cmd    *exec.Cmd
	output lockedBuffer

	done   chan struct{}
	result *ExecResult

	termOnce sync.Once
	killed   atomic.Bool // Terminate 与 wait goroutine 并发访问
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, b.buf.Len())
	copy(out, b.buf.Bytes())
	return out
}

// Start 启动受监管进程。子进程放入独立进程组，便于整组终止。
func Start(ctx context.Context, name string, args ...string) (*Supervised, error) {
	if name == "" {
		return nil, ErrEmptyCommand
	}
	if ctx == nil {
		return nil, ErrNilContext
	}

	s := &Supervised{
		done: make(chan struct{}),
	}

	cmd := exec.Command(name, args...)
	cmd.Stdout = &s.output
	cmd.Stderr = &s.output
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	s.cmd = cmd

	go s.wait(ctx)

	return s, nil
}

func (s *Supervised) wait(ctx context.Context) {
	waitDone := make(chan error, 1)
	go func() { waitDone <- s.cmd.Wait() }()

	var err error
	select {
	case err = <-waitDone:
	case <-ctx.Done():
		s.Terminate()
		err = <-waitDone
	}

	res := &ExecResult{
		Stdout:   s.output.Bytes(),
		ExitCode: extractExitCode(err),
	}
	if s.killed.Load() {
		res.Err = ErrCanceled
	} else {
		res.Err = wrapError(ctx, err)
	}

	s.result = res
	close(s.done)
}

// Snapshot 返回到目前为止捕获的全部输出
func (s *Supervised) Snapshot() []byte {
	return s.output.Bytes()
}

// Done 进程结束时关闭
func (s *Supervised) Done() <-chan struct{} {
	return s.done
}

// Wait 阻塞直到进程结束并返回结果
func (s *Supervised) Wait() *ExecResult {
	<-s.done
	return s.result
}

// Terminate 强制终止整个进程组。先 SIGTERM，宽限期后 SIGKILL。
// 可以安全地多次调用。
func (s *Supervised) Terminate() {
	s.termOnce.Do(func() {
		s.killed.Store(true)
		pgid := s.cmd.Process.Pid

		_ = unix.Kill(-pgid, unix.SIGTERM)

		go func() {
			select {
			case <-s.done:
			case <-time.After(termGrace):
				_ = unix.Kill(-pgid, unix.SIGKILL)
			}
		}()
	})
}
