/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package process provides managed-process lifecycle primitives for beaconctl.
// process 包提供 beaconctl 的托管进程生命周期原语。
//
// This package provides:
// 此包提供：
// - Launch with output redirection / 带输出重定向的启动
// - Non-blocking liveness polls / 非阻塞存活轮询
// - Graceful-then-forceful stop escalation / 先优雅后强制的停止升级
package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Common errors for process management
// 进程管理的常见错误
var (
	// ErrLaunchFailed indicates the binary could not be started
	// ErrLaunchFailed 表示二进制无法启动
	ErrLaunchFailed = errors.New("process failed to launch")

	// ErrStopFailed indicates the stop escalation could not signal the process
	// ErrStopFailed 表示停止升级无法向进程发送信号
	ErrStopFailed = errors.New("process failed to stop")
)

// State represents the lifecycle state of a managed process.
// State 表示托管进程的生命周期状态。
//
// NotStarted → Starting → Running → {Exited | Terminated | Killed}
// Exited, Terminated, and Killed are terminal; a terminal process is
// never signaled again.
// Exited、Terminated、Killed 是终态；处于终态的进程不会再被发送信号。
type State string

const (
	// StateNotStarted indicates launch has not been attempted
	// StateNotStarted 表示尚未尝试启动
	StateNotStarted State = "not_started"

	// StateStarting indicates the process was launched but not yet verified
	// StateStarting 表示进程已启动但尚未通过验证
	StateStarting State = "starting"

	// StateRunning indicates the process passed its startup verification
	// StateRunning 表示进程已通过启动验证
	StateRunning State = "running"

	// StateExited indicates the process exited on its own
	// StateExited 表示进程自行退出
	StateExited State = "exited"

	// StateTerminated indicates the process exited after a graceful signal
	// StateTerminated 表示进程在收到优雅信号后退出
	StateTerminated State = "terminated"

	// StateKilled indicates the process was forcefully killed
	// StateKilled 表示进程被强制杀死
	StateKilled State = "killed"
)

// Terminal reports whether the state is final
// Terminal 报告该状态是否为终态
func (s State) Terminal() bool {
	switch s {
	case StateExited, StateTerminated, StateKilled:
		return true
	}
	return false
}

// Handle is the narrow managed-process view used by the sequencer,
// supervisor, and monitor. Tests substitute fake handles.
// Handle 是编排器、监督器和监控器使用的托管进程窄接口。测试中可替换为假句柄。
type Handle interface {
	// Name returns the component name / 返回组件名称
	Name() string

	// PID returns the OS process id, or 0 before launch / 返回进程 ID，启动前为 0
	PID() int

	// State returns the current lifecycle state / 返回当前生命周期状态
	State() State

	// ExitCode returns the recorded exit code once the process has exited
	// ExitCode 在进程退出后返回记录的退出码
	ExitCode() (int, bool)

	// Alive reports liveness without blocking / 非阻塞地报告存活状态
	Alive() bool

	// Done is closed once the process has exited / 进程退出后关闭
	Done() <-chan struct{}

	// MarkRunning transitions Starting → Running after verification
	// MarkRunning 在验证通过后将 Starting 转换为 Running
	MarkRunning()

	// Stop runs the graceful-then-forceful escalation. It is idempotent:
	// a terminal process is never signaled again and the call returns nil.
	// Stop 执行先优雅后强制的停止升级。幂等：终态进程不会再被发送信号，调用返回 nil。
	Stop(gracefulTimeout time.Duration) error
}

// Spec describes a binary to launch with fixed arguments
// Spec 描述要启动的二进制及其固定参数
type Spec struct {
	// Name is the component name used in banners and logs
	// Name 是横幅和日志中使用的组件名称
	Name string

	// Path is the binary path / 二进制路径
	Path string

	// Args is the fixed positional argument list / 固定位置参数列表
	Args []string

	// Output receives the combined stdout+stderr stream; nil discards it.
	// The writer is owned by the caller, never by the child.
	// Output 接收合并的 stdout+stderr 流；为 nil 时丢弃。
	// writer 由调用方持有，绝不由子进程持有。
	Output io.Writer
}

// ManagedProcess is an OS process started and tracked by the orchestrator
// for its full lifetime.
// ManagedProcess 是由编排器启动并全程跟踪的 OS 进程。
type ManagedProcess struct {
	name      string
	path      string
	args      []string
	cmd       *exec.Cmd
	startTime time.Time

	// done is closed by the waiter goroutine once the process exits,
	// so liveness polls never block.
	// done 由 waiter goroutine 在进程退出后关闭，使存活轮询永不阻塞。
	done chan struct{}

	mu       sync.RWMutex
	state    State
	exitCode int
	exited   bool
	termSent bool
	killSent bool
}

// Launch starts the binary described by spec and returns its handle.
// The returned process is in the Starting state; callers verify liveness
// and promote it with MarkRunning.
// Launch 启动 spec 描述的二进制并返回其句柄。
// 返回的进程处于 Starting 状态；调用方验证存活后用 MarkRunning 提升状态。
func Launch(spec Spec) (*ManagedProcess, error) {
	cmd := exec.Command(spec.Path, spec.Args...)
	if spec.Output != nil {
		cmd.Stdout = spec.Output
		cmd.Stderr = spec.Output
	}

	p := &ManagedProcess{
		name:  spec.Name,
		path:  spec.Path,
		args:  spec.Args,
		cmd:   cmd,
		done:  make(chan struct{}),
		state: StateNotStarted,
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLaunchFailed, spec.Name, err)
	}

	p.mu.Lock()
	p.state = StateStarting
	p.startTime = time.Now()
	p.mu.Unlock()

	// Waiter goroutine harvests the exit status exactly once and resolves
	// the terminal state from which signals were in flight.
	// waiter goroutine 只收割一次退出状态，并根据在途信号确定终态。
	go func() {
		err := cmd.Wait()

		p.mu.Lock()
		p.exited = true
		p.exitCode = exitCodeOf(err)
		switch {
		case p.killSent:
			p.state = StateKilled
		case p.termSent:
			p.state = StateTerminated
		default:
			p.state = StateExited
		}
		p.mu.Unlock()

		close(p.done)
	}()

	return p, nil
}

// exitCodeOf extracts the exit code from a Wait error
// exitCodeOf 从 Wait 错误中提取退出码
func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// Name returns the component name / 返回组件名称
func (p *ManagedProcess) Name() string { return p.name }

// PID returns the OS process id / 返回进程 ID
func (p *ManagedProcess) PID() int {
	if p.cmd != nil && p.cmd.Process != nil {
		return p.cmd.Process.Pid
	}
	return 0
}

// StartTime returns when the process was launched / 返回进程启动时间
func (p *ManagedProcess) StartTime() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.startTime
}

// State returns the current lifecycle state / 返回当前生命周期状态
func (p *ManagedProcess) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// ExitCode returns the recorded exit code once the process has exited
// ExitCode 在进程退出后返回记录的退出码
func (p *ManagedProcess) ExitCode() (int, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exitCode, p.exited
}

// Done is closed once the process has exited / 进程退出后关闭
func (p *ManagedProcess) Done() <-chan struct{} { return p.done }

// Alive reports liveness without blocking / 非阻塞地报告存活状态
func (p *ManagedProcess) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state == StateStarting || p.state == StateRunning
}

// MarkRunning transitions Starting → Running after verification
// MarkRunning 在验证通过后将 Starting 转换为 Running
func (p *ManagedProcess) MarkRunning() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateStarting {
		p.state = StateRunning
	}
}

// Stop sends SIGTERM, waits up to gracefulTimeout for voluntary exit, then
// escalates to SIGKILL. A process already in a terminal state is never
// signaled again; repeated calls are no-ops.
// Stop 发送 SIGTERM，最多等待 gracefulTimeout 以便进程自行退出，超时后升级为 SIGKILL。
// 已处于终态的进程不会再被发送信号；重复调用为空操作。
func (p *ManagedProcess) Stop(gracefulTimeout time.Duration) error {
	p.mu.Lock()
	if p.state.Terminal() || p.state == StateNotStarted {
		p.mu.Unlock()
		return nil
	}
	p.termSent = true
	proc := p.cmd.Process
	p.mu.Unlock()

	if err := proc.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("%w: %s: SIGTERM: %v", ErrStopFailed, p.name, err)
	}

	select {
	case <-p.done:
		// Exited inside the graceful window / 在优雅窗口内退出
		return nil
	case <-time.After(gracefulTimeout):
	}

	// Escalation: the timeout is expected and recoverable, not an error.
	// 升级：超时是预期且可恢复的情况，不是错误。
	p.mu.Lock()
	p.killSent = true
	p.mu.Unlock()

	if err := proc.Signal(syscall.SIGKILL); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("%w: %s: SIGKILL: %v", ErrStopFailed, p.name, err)
	}

	<-p.done
	return nil
}
