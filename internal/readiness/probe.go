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

// Package readiness provides pluggable startup verification probes.
// readiness 包提供可插拔的启动就绪验证探针。
//
// The sequencer's control flow is identical regardless of which probe a
// step carries. The fixed settle delay is the default and is a heuristic
// readiness proxy, not a contract: a real readiness signal from the
// component would replace it without touching callers.
// 无论步骤使用哪种探针，编排器的控制流都完全一致。固定稳定等待是默认探针，
// 它只是就绪的启发式代理而非契约：组件提供真正的就绪信号后可以直接替换，
// 无需改动调用方。
package readiness

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/beacon-exchange/beaconctl/internal/process"
)

// ErrNotReady indicates the probe gave up before the component became ready
// ErrNotReady 表示探针在组件就绪前放弃
var ErrNotReady = errors.New("component not ready")

// Probe verifies that a freshly launched process is ready to serve.
// Probe 验证刚启动的进程是否已准备好提供服务。
type Probe interface {
	// Verify blocks until the process is considered ready, the probe gives
	// up, or ctx is canceled. Waits are always bounded.
	// Verify 阻塞直到进程被认为就绪、探针放弃或 ctx 被取消。等待始终有界。
	Verify(ctx context.Context, h process.Handle) error
}

// Settle is the fixed-delay probe: sleep, then re-check liveness.
// A process that dies before the delay elapses fails verification,
// same as a launch failure.
// Settle 是固定等待探针：先等待再复查存活。
// 在等待期间死亡的进程验证失败，与启动失败同样处理。
type Settle struct {
	// Delay is the settle delay / 稳定等待时间
	Delay time.Duration
}

// Verify sleeps for the settle delay then re-checks liveness
// Verify 等待稳定时间后复查存活状态
func (s Settle) Verify(ctx context.Context, h process.Handle) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.Done():
		code, _ := h.ExitCode()
		return fmt.Errorf("%w: %s exited early with code %d", ErrNotReady, h.Name(), code)
	case <-time.After(s.Delay):
	}

	if !h.Alive() {
		code, _ := h.ExitCode()
		return fmt.Errorf("%w: %s exited early with code %d", ErrNotReady, h.Name(), code)
	}
	return nil
}

// TCP is the socket probe: poll until the component accepts a connection.
// TCP 是套接字探针：轮询直到组件接受连接。
type TCP struct {
	// Addr is the host:port to dial / 要拨号的 host:port
	Addr string

	// Timeout bounds the whole probe / 整个探测的时间上限
	Timeout time.Duration

	// Interval is the poll cadence / 轮询节奏
	Interval time.Duration
}

// Verify polls the address until it accepts a connection or the timeout elapses
// Verify 轮询地址直到连接被接受或超时
func (t TCP) Verify(ctx context.Context, h process.Handle) error {
	interval := t.Interval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	deadline := time.Now().Add(t.Timeout)
	for {
		if !h.Alive() {
			return fmt.Errorf("%w: %s exited before accepting connections", ErrNotReady, h.Name())
		}

		conn, err := net.DialTimeout("tcp", t.Addr, interval)
		if err == nil {
			conn.Close()
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s not accepting connections on %s", ErrNotReady, h.Name(), t.Addr)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// LogMarker is the log probe: poll a captured output file for a literal line.
// LogMarker 是日志探针：轮询捕获的输出文件，查找字面标记行。
type LogMarker struct {
	// Path is the captured output file / 捕获输出文件路径
	Path string

	// Marker is the literal substring to wait for / 等待出现的字面子串
	Marker string

	// Timeout bounds the whole probe / 整个探测的时间上限
	Timeout time.Duration

	// Interval is the poll cadence / 轮询节奏
	Interval time.Duration
}

// Verify polls the file until the marker appears or the timeout elapses.
// Reads are plain non-exclusive opens, tolerant of a file still being written.
// Verify 轮询文件直到标记出现或超时。读取是普通的非独占打开，容忍文件仍在写入。
func (l LogMarker) Verify(ctx context.Context, h process.Handle) error {
	interval := l.Interval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	deadline := time.Now().Add(l.Timeout)
	for {
		if !h.Alive() {
			return fmt.Errorf("%w: %s exited before logging %q", ErrNotReady, h.Name(), l.Marker)
		}

		if containsLine(l.Path, l.Marker) {
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s never logged %q", ErrNotReady, h.Name(), l.Marker)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// containsLine scans the file for a line containing the marker.
// Missing or unreadable files simply report false.
// containsLine 扫描文件查找包含标记的行。文件缺失或不可读时返回 false。
func containsLine(path, marker string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if strings.Contains(scanner.Text(), marker) {
			return true
		}
	}
	return false
}
