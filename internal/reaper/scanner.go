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

package reaper

import (
	"errors"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
)

// ErrScannerUnavailable indicates the process-listing facility is missing.
// The reaper degrades to "no processes found" in that case.
// ErrScannerUnavailable 表示进程列表工具不可用。此时 reaper 降级为"未找到进程"。
var ErrScannerUnavailable = errors.New("process listing facility unavailable")

// DiscoveredProcess is a system process matching a reaper pattern.
// It is foreign state: the reaper never owns what it finds.
// DiscoveredProcess 是匹配 reaper 模式的系统进程。
// 它是外部状态：reaper 从不拥有它发现的进程。
type DiscoveredProcess struct {
	// PID is the process id / 进程 ID
	PID int

	// Name is the display name from the process table / 进程表中的显示名称
	Name string
}

// Scanner discovers system processes whose command line matches any of the
// given patterns. Tests substitute fake scanners.
// Scanner 发现命令行匹配任一给定模式的系统进程。测试中可替换为假扫描器。
type Scanner interface {
	Find(patterns []string) ([]DiscoveredProcess, error)
}

// Signaler delivers signals to arbitrary pids. Tests substitute fakes.
// Signaler 向任意 pid 发送信号。测试中可替换为假实现。
type Signaler interface {
	Signal(pid int, sig syscall.Signal) error
}

// PgrepScanner scans the system-wide process table with pgrep and resolves
// display names with ps. The scanner's own pid is always excluded.
// PgrepScanner 使用 pgrep 扫描系统级进程表，并用 ps 解析显示名称。
// 扫描器自身的 pid 始终被排除。
type PgrepScanner struct {
	// SelfPID is excluded from every result; zero means os.Getpid()
	// SelfPID 从所有结果中排除；为零时使用 os.Getpid()
	SelfPID int
}

// Find runs pgrep -f per pattern and deduplicates the matches.
// pgrep exit status 1 means no match and is not an error. A missing pgrep
// binary reports ErrScannerUnavailable.
// Find 对每个模式执行 pgrep -f 并去重。
// pgrep 退出码 1 表示无匹配，不是错误。pgrep 不存在时报告 ErrScannerUnavailable。
func (s *PgrepScanner) Find(patterns []string) ([]DiscoveredProcess, error) {
	self := s.SelfPID
	if self == 0 {
		self = os.Getpid()
	}

	var processes []DiscoveredProcess
	seen := make(map[int]bool)

	for _, pattern := range patterns {
		out, err := exec.Command("pgrep", "-f", pattern).Output()
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
				// No match for this pattern / 此模式无匹配
				continue
			}
			if errors.Is(err, exec.ErrNotFound) {
				return nil, ErrScannerUnavailable
			}
			// Any other per-pattern failure is tolerated; the pass continues
			// 其他单模式失败被容忍；扫描继续
			continue
		}

		for _, field := range strings.Fields(strings.TrimSpace(string(out))) {
			pid, err := strconv.Atoi(field)
			if err != nil || pid <= 0 {
				continue
			}
			if pid == self || seen[pid] {
				continue
			}
			seen[pid] = true

			name := displayName(pid)
			if name == "" {
				// Vanished between pgrep and ps: a benign race
				// 在 pgrep 与 ps 之间消失：良性竞争
				continue
			}
			processes = append(processes, DiscoveredProcess{PID: pid, Name: name})
		}
	}

	return processes, nil
}

// displayName resolves the short command name for a pid, empty if gone
// displayName 解析 pid 的短命令名，进程已消失时返回空串
func displayName(pid int) string {
	out, err := exec.Command("ps", "-p", strconv.Itoa(pid), "-o", "comm=").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// KillSignaler delivers real signals via the kernel
// KillSignaler 通过内核发送真实信号
type KillSignaler struct{}

// Signal sends sig to pid. Signal 0 only checks existence.
// Signal 向 pid 发送 sig。信号 0 仅检查存在性。
func (KillSignaler) Signal(pid int, sig syscall.Signal) error {
	return syscall.Kill(pid, sig)
}
