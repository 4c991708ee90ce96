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

// Package reaper implements the ownership-agnostic system-wide cleanup pass.
// reaper 包实现无所有权假设的系统级清理过程。
//
// The reaper assumes nothing about what this invocation started: it discovers
// processes by command-line pattern, escalates graceful-then-forceful kills,
// verifies the result with a re-scan, and reports lingering sockets and
// temporary log files.
// reaper 不假设本次调用启动了什么：它按命令行模式发现进程，执行先优雅后强制的
// 终止升级，通过重新扫描验证结果，并报告残留的套接字和临时日志文件。
package reaper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const summaryLine = "======================================================================"

// Disposition classifies the outcome of one kill attempt
// Disposition 表示单次终止尝试的结果分类
type Disposition int

const (
	// DispositionKilled indicates the process was terminated (gracefully or forced)
	// DispositionKilled 表示进程已被终止（优雅或强制）
	DispositionKilled Disposition = iota

	// DispositionAlreadyGone indicates the process vanished before or while
	// signaling. That race counts as success.
	// DispositionAlreadyGone 表示进程在发信号前或期间消失。该竞争视为成功。
	DispositionAlreadyGone

	// DispositionPermissionDenied indicates signaling was not permitted
	// DispositionPermissionDenied 表示没有权限发送信号
	DispositionPermissionDenied

	// DispositionOtherError indicates any other signaling failure
	// DispositionOtherError 表示其他信号发送失败
	DispositionOtherError
)

// Succeeded reports whether the disposition counts toward the killed tally
// Succeeded 报告该分类是否计入成功终止数
func (d Disposition) Succeeded() bool {
	return d == DispositionKilled || d == DispositionAlreadyGone
}

// KillResult records the outcome of one kill attempt
// KillResult 记录单次终止尝试的结果
type KillResult struct {
	Proc        DiscoveredProcess
	Disposition Disposition

	// Forced is set when SIGKILL was needed / SIGKILL 被使用时置位
	Forced bool

	// Err is the underlying failure for the failed dispositions
	// Err 是失败分类的底层错误
	Err error
}

// LogCleanupMode controls what happens to temporary log files after the pass
// LogCleanupMode 控制清理结束后如何处理临时日志文件
type LogCleanupMode int

const (
	// LogsAsk prompts interactively before deleting / 删除前交互式询问
	LogsAsk LogCleanupMode = iota

	// LogsDelete deletes without asking / 不询问直接删除
	LogsDelete

	// LogsKeep skips the prompt and keeps the files / 跳过询问并保留文件
	LogsKeep
)

// Report aggregates everything one reaper pass found and did
// Report 汇总一次 reaper 过程发现和执行的所有内容
type Report struct {
	// Found are the processes discovered before the kill pass
	// Found 是终止前发现的进程
	Found []DiscoveredProcess

	// Results holds one entry per kill attempt / 每次终止尝试一条记录
	Results []KillResult

	// Killed and Failed are the summary tallies / 汇总计数
	Killed int
	Failed int

	// Remaining are the matches left after the verification re-scan
	// Remaining 是验证重扫后仍存在的匹配进程
	Remaining []DiscoveredProcess
}

// ExitCode is 0 when no targeted process remains, non-zero otherwise
// ExitCode 在没有目标进程残留时为 0，否则非零
func (r *Report) ExitCode() int {
	if len(r.Remaining) > 0 {
		return 1
	}
	return 0
}

// Reaper performs one system-wide cleanup pass
// Reaper 执行一次系统级清理过程
type Reaper struct {
	// Patterns are the command-line patterns to hunt for
	// Patterns 是要查找的命令行模式
	Patterns []string

	// Grace is the pause between SIGTERM and the existence re-check
	// Grace 是 SIGTERM 与存在性复查之间的暂停
	Grace time.Duration

	// Ports are inspected for lingering bound sockets (diagnostic only)
	// Ports 用于检查残留绑定的套接字（仅诊断）
	Ports []int

	// LogGlob matches temporary log files offered for deletion
	// LogGlob 匹配可供删除的临时日志文件
	LogGlob string

	// LogMode controls temporary log file handling / 控制临时日志文件处理方式
	LogMode LogCleanupMode

	// Prompt asks a yes/no question in LogsAsk mode; nil keeps the files
	// Prompt 在 LogsAsk 模式下询问是/否；为 nil 时保留文件
	Prompt func(question string) (bool, error)

	// Scanner and Signaler are the process-table and signaling backends
	// Scanner 和 Signaler 是进程表与信号发送后端
	Scanner  Scanner
	Signaler Signaler

	// Out receives user-facing output; nil discards it
	// Out 接收面向用户的输出；为 nil 时丢弃
	Out io.Writer

	// Log is the diagnostics logger; nil uses a no-op logger
	// Log 是诊断日志记录器；为 nil 时使用空记录器
	Log *zap.Logger
}

// Run executes the full pass: discover, kill, verify, inspect sockets,
// offer log cleanup. Per-process failures never abort the pass; they are
// aggregated into the report and its exit code.
// Run 执行完整过程：发现、终止、验证、检查套接字、提供日志清理。
// 单个进程的失败不会中止整个过程；失败被汇总进报告及其退出码。
func (r *Reaper) Run(ctx context.Context) (*Report, error) {
	out := r.Out
	if out == nil {
		out = io.Discard
	}
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}

	fmt.Fprintln(out, summaryLine)
	fmt.Fprintln(out, "  BEACON TRADING SYSTEM - PROCESS CLEANUP")
	fmt.Fprintln(out, summaryLine)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Scanning for running processes...")
	fmt.Fprintln(out)

	report := &Report{}

	found, err := r.Scanner.Find(r.Patterns)
	if err != nil {
		// Degrade to "no processes found" when the listing facility is gone
		// 进程列表工具不可用时降级为"未找到进程"
		log.Warn("process discovery degraded", zap.Error(err))
		fmt.Fprintf(out, "Warning: %v\n", err)
		fmt.Fprintln(out, "✓ No Beacon processes found running")
		fmt.Fprintln(out)
		return report, nil
	}
	report.Found = found

	if len(found) == 0 {
		fmt.Fprintln(out, "✓ No Beacon processes found running")
		fmt.Fprintln(out)
		return report, nil
	}

	for _, proc := range found {
		fmt.Fprintf(out, "  [FOUND]  PID %d: %s\n", proc.PID, proc.Name)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Found %d process(es) to kill\n", len(found))
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Attempting to kill processes...")
	fmt.Fprintln(out)

	// Kill pass: graceful signal, brief wait, existence re-check, escalate.
	// 终止过程：优雅信号、短暂等待、存在性复查、升级。
	for _, proc := range found {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		result := r.killOne(proc)
		report.Results = append(report.Results, result)
		if result.Disposition.Succeeded() {
			report.Killed++
		} else {
			report.Failed++
		}
		r.printResult(out, result)
	}

	r.printSummary(out, report)

	// Verification re-scan with the same patterns / 用相同模式重新扫描验证
	fmt.Fprintln(out, "Verifying cleanup...")
	remaining, err := r.Scanner.Find(r.Patterns)
	if err != nil {
		log.Warn("verification re-scan degraded", zap.Error(err))
		remaining = nil
	}
	report.Remaining = remaining

	if len(remaining) > 0 {
		fmt.Fprintf(out, "✗ %d process(es) still running:\n", len(remaining))
		for _, proc := range remaining {
			fmt.Fprintf(out, "  [STILL RUNNING] PID %d: %s\n", proc.PID, proc.Name)
		}
		fmt.Fprintln(out)
	} else {
		fmt.Fprintln(out, "✓ All processes successfully terminated")
		fmt.Fprintln(out)
	}

	r.checkSockets(out)
	r.checkLogFiles(out, log)

	return report, nil
}

// killOne runs the two-stage escalation against one discovered process.
// A process vanishing between discovery and signaling counts as success.
// killOne 对一个已发现的进程执行两阶段升级。
// 进程在发现与发信号之间消失视为成功。
func (r *Reaper) killOne(proc DiscoveredProcess) KillResult {
	result := KillResult{Proc: proc}

	if err := r.Signaler.Signal(proc.PID, syscall.SIGTERM); err != nil {
		result.Disposition, result.Err = classify(err)
		return result
	}

	time.Sleep(r.Grace)

	// Signal 0 only checks existence / 信号 0 仅检查存在性
	if err := r.Signaler.Signal(proc.PID, 0); err != nil {
		// Terminated gracefully / 已优雅退出
		result.Disposition = DispositionKilled
		return result
	}

	if err := r.Signaler.Signal(proc.PID, syscall.SIGKILL); err != nil {
		result.Disposition, result.Err = classify(err)
		return result
	}

	result.Disposition = DispositionKilled
	result.Forced = true
	return result
}

// classify maps a signaling error to a disposition
// classify 将信号发送错误映射为分类
func classify(err error) (Disposition, error) {
	switch {
	case errors.Is(err, syscall.ESRCH):
		return DispositionAlreadyGone, nil
	case errors.Is(err, syscall.EPERM):
		return DispositionPermissionDenied, err
	default:
		return DispositionOtherError, err
	}
}

// printResult prints one kill attempt the way the summary expects it
// printResult 按汇总格式打印一次终止尝试
func (r *Reaper) printResult(out io.Writer, result KillResult) {
	switch result.Disposition {
	case DispositionKilled:
		if result.Forced {
			fmt.Fprintf(out, "  [KILLED] PID %d: %s (forced)\n", result.Proc.PID, result.Proc.Name)
		} else {
			fmt.Fprintf(out, "  [KILLED] PID %d: %s\n", result.Proc.PID, result.Proc.Name)
		}
	case DispositionAlreadyGone:
		fmt.Fprintf(out, "  [GONE]   PID %d: %s (already terminated)\n", result.Proc.PID, result.Proc.Name)
	case DispositionPermissionDenied:
		fmt.Fprintf(out, "  [FAILED] PID %d: %s (permission denied)\n", result.Proc.PID, result.Proc.Name)
	default:
		fmt.Fprintf(out, "  [FAILED] PID %d: %s (%v)\n", result.Proc.PID, result.Proc.Name, result.Err)
	}
}

// printSummary prints the found/killed/failed box
// printSummary 打印 found/killed/failed 汇总框
func (r *Reaper) printSummary(out io.Writer, report *Report) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, summaryLine)
	fmt.Fprintln(out, "  CLEANUP SUMMARY")
	fmt.Fprintln(out, summaryLine)
	fmt.Fprintf(out, "  Found:    %d\n", len(report.Found))
	fmt.Fprintf(out, "  Killed:   %d\n", report.Killed)
	fmt.Fprintf(out, "  Failed:   %d\n", report.Failed)
	fmt.Fprintln(out, summaryLine)
	fmt.Fprintln(out)
}

// checkSockets reports ports that are still bound. Binding is attempted and
// immediately released; a bind failure means something still holds the port.
// Diagnostic only: the result never affects the exit code.
// checkSockets 报告仍被占用的端口。尝试绑定后立即释放；绑定失败说明端口仍被占用。
// 仅用于诊断：结果不影响退出码。
func (r *Reaper) checkSockets(out io.Writer) {
	if len(r.Ports) == 0 {
		return
	}

	fmt.Fprintln(out, "Checking for lingering sockets...")

	var bound []string
	for _, port := range r.Ports {
		if l, err := net.Listen("tcp", fmt.Sprintf(":%d", port)); err != nil {
			bound = append(bound, fmt.Sprintf("TCP :%d", port))
		} else {
			l.Close()
		}
		if c, err := net.ListenPacket("udp", fmt.Sprintf(":%d", port)); err != nil {
			bound = append(bound, fmt.Sprintf("UDP :%d", port))
		} else {
			c.Close()
		}
	}

	if len(bound) > 0 {
		fmt.Fprintln(out, "Found bound sockets:")
		for _, b := range bound {
			fmt.Fprintf(out, "  %s still bound\n", b)
		}
		fmt.Fprintln(out, "(Will be cleaned up when processes exit)")
	} else {
		fmt.Fprintln(out, "✓ No sockets bound to monitored ports")
	}
	fmt.Fprintln(out)
}

// checkLogFiles lists temporary log files and optionally deletes them
// checkLogFiles 列出临时日志文件并按需删除
func (r *Reaper) checkLogFiles(out io.Writer, log *zap.Logger) {
	if r.LogGlob == "" {
		return
	}

	fmt.Fprintln(out, "Checking for temporary log files...")

	files, err := filepath.Glob(r.LogGlob)
	if err != nil || len(files) == 0 {
		fmt.Fprintln(out, "✓ No temporary log files found")
		fmt.Fprintln(out)
		return
	}

	fmt.Fprintln(out, "Found log files:")
	for _, file := range files {
		size := int64(0)
		if info, err := os.Stat(file); err == nil {
			size = info.Size()
		}
		fmt.Fprintf(out, "  %s (%.1f KB)\n", file, float64(size)/1024)
	}
	fmt.Fprintln(out)

	remove := false
	switch r.LogMode {
	case LogsDelete:
		remove = true
	case LogsKeep:
	case LogsAsk:
		if r.Prompt != nil {
			answer, err := r.Prompt("Delete log files? (y/n): ")
			if err == nil {
				remove = answer
			}
		}
	}

	if remove {
		for _, file := range files {
			if err := os.Remove(file); err != nil {
				fmt.Fprintf(out, "  Warning: could not delete %s: %v\n", file, err)
				log.Warn("log file deletion failed", zap.String("file", file), zap.Error(err))
			}
		}
		fmt.Fprintln(out, "✓ Log files deleted")
	} else {
		fmt.Fprintln(out, "Log files kept")
	}
	fmt.Fprintln(out)
}
