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

package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beacon-exchange/beaconctl/internal/process"
	"github.com/beacon-exchange/beaconctl/internal/readiness"
)

// stopRecorder collects teardown calls across fake handles
// stopRecorder 收集假句柄之间的关闭调用
type stopRecorder struct {
	mu    sync.Mutex
	order []string
}

func (r *stopRecorder) record(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, name)
}

func (r *stopRecorder) stops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// fakeHandle is an in-memory stand-in for a managed process
// fakeHandle 是托管进程的内存替身
type fakeHandle struct {
	name     string
	state    process.State
	stopErr  error
	recorder *stopRecorder
	done     chan struct{}
	stopped  int
}

func newFakeHandle(name string, rec *stopRecorder) *fakeHandle {
	return &fakeHandle{
		name:     name,
		state:    process.StateStarting,
		recorder: rec,
		done:     make(chan struct{}),
	}
}

func (f *fakeHandle) Name() string          { return f.name }
func (f *fakeHandle) PID() int              { return 4242 }
func (f *fakeHandle) State() process.State  { return f.state }
func (f *fakeHandle) ExitCode() (int, bool) { return 0, f.state.Terminal() }
func (f *fakeHandle) Alive() bool           { return !f.state.Terminal() }
func (f *fakeHandle) Done() <-chan struct{} { return f.done }
func (f *fakeHandle) MarkRunning()          { f.state = process.StateRunning }

func (f *fakeHandle) Stop(time.Duration) error {
	f.stopped++
	if f.recorder != nil {
		f.recorder.record(f.name)
	}
	if f.stopErr != nil {
		return f.stopErr
	}
	if !f.state.Terminal() {
		f.state = process.StateTerminated
		close(f.done)
	}
	return nil
}

// exit moves the handle to a terminal state without a signal
// exit 在不发信号的情况下将句柄移入终态
func (f *fakeHandle) exit() {
	f.state = process.StateExited
	close(f.done)
}

// fakeProbe returns a fixed verification result
// fakeProbe 返回固定的验证结果
type fakeProbe struct {
	err error
}

func (p fakeProbe) Verify(context.Context, process.Handle) error { return p.err }

// passingStep builds a step that launches a fake handle successfully
// passingStep 构造成功启动假句柄的步骤
func passingStep(name string, rec *stopRecorder, launched *[]*fakeHandle) Step {
	return Step{
		Name: name,
		Launch: func() (process.Handle, error) {
			h := newFakeHandle(name, rec)
			*launched = append(*launched, h)
			return h, nil
		},
		Probe: fakeProbe{},
	}
}

// TestStartAllStepsPass tests the happy startup path
// TestStartAllStepsPass 测试全部步骤通过的启动路径
func TestStartAllStepsPass(t *testing.T) {
	rec := &stopRecorder{}
	var launched []*fakeHandle

	steps := []Step{
		passingStep("engine", rec, &launched),
		passingStep("algorithm", rec, &launched),
		passingStep("market-data", rec, &launched),
	}
	steps[1].Critical = true

	sess := New(steps, Options{Duration: time.Minute})
	require.NoError(t, sess.Start(context.Background()))

	require.Len(t, launched, 3)
	assert.Len(t, sess.Started(), 3)

	// Verification promotes each step to Running / 验证将每个步骤提升为 Running
	for _, h := range launched {
		assert.Equal(t, process.StateRunning, h.State())
	}

	crit := sess.Critical()
	require.Len(t, crit, 1)
	assert.Equal(t, "algorithm", crit[0].Name())
}

// TestStartAbortsOnLaunchFailure tests that a failed launch stops the sequence
// TestStartAbortsOnLaunchFailure 测试启动失败中止序列
func TestStartAbortsOnLaunchFailure(t *testing.T) {
	rec := &stopRecorder{}
	var launched []*fakeHandle
	thirdLaunched := false

	boom := errors.New("spawn failed")
	steps := []Step{
		passingStep("engine", rec, &launched),
		{
			Name:   "algorithm",
			Launch: func() (process.Handle, error) { return nil, boom },
			Probe:  fakeProbe{},
		},
		{
			Name: "market-data",
			Launch: func() (process.Handle, error) {
				thirdLaunched = true
				return newFakeHandle("market-data", rec), nil
			},
			Probe: fakeProbe{},
		},
	}

	err := New(steps, Options{}).Start(context.Background())
	require.Error(t, err)

	var startupErr *StartupError
	require.ErrorAs(t, err, &startupErr)
	assert.Equal(t, 2, startupErr.Step)
	assert.Equal(t, "algorithm", startupErr.Name)
	assert.ErrorIs(t, err, boom)

	// Steps after the failed one are never launched / 失败步骤之后的步骤不会被启动
	assert.False(t, thirdLaunched)

	// The already-started engine was torn down / 已启动的引擎被关闭
	assert.Equal(t, []string{"engine"}, rec.stops())
}

// TestStartAbortsOnProbeFailure tests that failed verification also tears down
// the process it launched
// TestStartAbortsOnProbeFailure 测试验证失败也会关闭其刚启动的进程
func TestStartAbortsOnProbeFailure(t *testing.T) {
	rec := &stopRecorder{}
	var launched []*fakeHandle

	steps := []Step{
		passingStep("engine", rec, &launched),
		{
			Name: "algorithm",
			Launch: func() (process.Handle, error) {
				h := newFakeHandle("algorithm", rec)
				launched = append(launched, h)
				return h, nil
			},
			Probe: fakeProbe{err: fmt.Errorf("%w: never connected", readiness.ErrNotReady)},
		},
	}

	err := New(steps, Options{}).Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, readiness.ErrNotReady)

	// Teardown covers the failed step's own process, in reverse order
	// 关闭包含失败步骤自身的进程，且按逆序进行
	assert.Equal(t, []string{"algorithm", "engine"}, rec.stops())
}

// TestShutdownReverseOrder tests strict reverse-of-startup teardown
// TestShutdownReverseOrder 测试严格按启动逆序的关闭
func TestShutdownReverseOrder(t *testing.T) {
	rec := &stopRecorder{}
	var launched []*fakeHandle

	steps := []Step{
		passingStep("engine", rec, &launched),
		passingStep("algorithm", rec, &launched),
		passingStep("market-data", rec, &launched),
	}

	sess := New(steps, Options{GracefulTimeout: time.Second})
	require.NoError(t, sess.Start(context.Background()))

	require.NoError(t, sess.Shutdown())
	assert.Equal(t, []string{"market-data", "algorithm", "engine"}, rec.stops())
}

// TestShutdownSkipsTerminal tests that dead processes are never signaled again
// TestShutdownSkipsTerminal 测试已死亡的进程不会再被发送信号
func TestShutdownSkipsTerminal(t *testing.T) {
	rec := &stopRecorder{}
	var launched []*fakeHandle

	steps := []Step{
		passingStep("engine", rec, &launched),
		passingStep("algorithm", rec, &launched),
	}

	sess := New(steps, Options{})
	require.NoError(t, sess.Start(context.Background()))
	require.Len(t, launched, 2)

	// The algorithm exits on its own before teardown / 算法在关闭前自行退出
	launched[1].exit()

	require.NoError(t, sess.Shutdown())
	assert.Equal(t, []string{"engine"}, rec.stops())
	assert.Zero(t, launched[1].stopped)
}

// TestShutdownBestEffort tests that one failed teardown never short-circuits
// the rest
// TestShutdownBestEffort 测试单个关闭失败不会中断其余进程的关闭
func TestShutdownBestEffort(t *testing.T) {
	rec := &stopRecorder{}
	var launched []*fakeHandle

	steps := []Step{
		passingStep("engine", rec, &launched),
		passingStep("algorithm", rec, &launched),
		passingStep("market-data", rec, &launched),
	}

	sess := New(steps, Options{})
	require.NoError(t, sess.Start(context.Background()))

	boom := errors.New("signal refused")
	launched[1].stopErr = boom

	err := sess.Shutdown()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	// Every process was still attempted / 每个进程仍被尝试关闭
	assert.Equal(t, []string{"market-data", "algorithm", "engine"}, rec.stops())
}

// countingCloser counts Close calls / 统计 Close 调用次数
type countingCloser struct {
	closed int
}

func (c *countingCloser) Close() error {
	c.closed++
	return nil
}

// TestCloseSinksExactlyOnce tests that sinks close once across repeated shutdowns
// TestCloseSinksExactlyOnce 测试多次关闭时接收器仅关闭一次
func TestCloseSinksExactlyOnce(t *testing.T) {
	rec := &stopRecorder{}
	var launched []*fakeHandle

	sess := New([]Step{passingStep("engine", rec, &launched)}, Options{})
	sink := &countingCloser{}
	sess.AddSink("algorithm log", sink)

	require.NoError(t, sess.Start(context.Background()))
	require.NoError(t, sess.Shutdown())
	require.NoError(t, sess.Shutdown())
	sess.CloseSinks()

	assert.Equal(t, 1, sink.closed)
}

// TestStartCanceledContext tests that cancellation aborts the sequence
// TestStartCanceledContext 测试取消中止启动序列
func TestStartCanceledContext(t *testing.T) {
	rec := &stopRecorder{}
	var launched []*fakeHandle

	steps := []Step{
		passingStep("engine", rec, &launched),
		passingStep("algorithm", rec, &launched),
	}
	steps[0].Cooldown = 5 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New(steps, Options{}).Start(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

// TestStartInterruptedIsNotAFailure tests that an interrupt landing in a
// cooldown wait tears down cleanly without being reported as a step failure
// TestStartInterruptedIsNotAFailure 测试落在冷却等待中的中断干净关闭，
// 而不被报告为步骤失败
func TestStartInterruptedIsNotAFailure(t *testing.T) {
	rec := &stopRecorder{}
	var launched []*fakeHandle

	steps := []Step{
		passingStep("engine", rec, &launched),
		passingStep("algorithm", rec, &launched),
	}
	steps[0].Cooldown = 2 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	var out bytes.Buffer
	err := New(steps, Options{Out: &out}).Start(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	// The cancellation is not wrapped as a step failure
	// 取消不会被包装为步骤失败
	var startupErr *StartupError
	assert.False(t, errors.As(err, &startupErr))
	assert.NotContains(t, out.String(), "FAILED")
	assert.Contains(t, out.String(), "Received interrupt, shutting down...")

	// The already started step was torn down; the next never launched
	// 已启动的步骤被关闭；下一步从未被启动
	require.Len(t, launched, 1)
	assert.Equal(t, []string{"engine"}, rec.stops())
	assert.True(t, launched[0].state.Terminal())
}
