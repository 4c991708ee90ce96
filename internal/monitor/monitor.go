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

// Package monitor drives the bounded-duration progress loop of a run.
// monitor 包驱动一次运行的有界进度循环。
//
// The loop ticks at a fixed sub-second cadence, renders a proportional
// progress bar at most once per elapsed second, and polls the critical
// handles non-blockingly on every tick. It never busy-spins.
// 循环以固定的亚秒节奏运行，每经过一秒最多渲染一次比例进度条，
// 每个 tick 非阻塞地轮询关键进程句柄。绝不忙等。
package monitor

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/beacon-exchange/beaconctl/internal/process"
)

// Kind classifies how the progress loop ended
// Kind 表示进度循环结束的方式
type Kind int

const (
	// Completed indicates elapsed time reached the configured duration
	// Completed 表示运行时间达到配置的时长
	Completed Kind = iota

	// ProcessExited indicates a critical process exited early
	// ProcessExited 表示关键进程提前退出
	ProcessExited

	// Interrupted indicates the context was canceled
	// Interrupted 表示上下文被取消
	Interrupted
)

// Outcome reports why the loop ended and, for early process exit,
// which component it was.
// Outcome 报告循环结束的原因；对于提前退出，还报告是哪个组件。
type Outcome struct {
	Kind      Kind
	Component string
}

// Options configures a Monitor
// Options 配置 Monitor
type Options struct {
	// Duration is the configured total run time / 配置的总运行时长
	Duration time.Duration

	// PollInterval is the tick cadence; values outside [100ms, 1s]
	// are clamped
	// PollInterval 是轮询节奏；超出 [100ms, 1s] 的值会被收敛到该范围
	PollInterval time.Duration

	// BarWidth is the progress bar width in cells / 进度条宽度（格数）
	BarWidth int

	// Out receives the rendered progress bar; nil discards it
	// Out 接收渲染的进度条；为 nil 时丢弃
	Out io.Writer
}

// Monitor drives one bounded progress loop. Single-use.
// Monitor 驱动一次有界进度循环。单次使用。
type Monitor struct {
	duration time.Duration
	interval time.Duration
	barWidth int
	out      io.Writer
	handles  []process.Handle
}

// New creates a Monitor watching the given critical handles
// New 创建监视给定关键句柄的 Monitor
func New(handles []process.Handle, opts Options) *Monitor {
	interval := opts.PollInterval
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	if interval > time.Second {
		interval = time.Second
	}

	barWidth := opts.BarWidth
	if barWidth <= 0 {
		barWidth = 50
	}

	out := opts.Out
	if out == nil {
		out = io.Discard
	}

	return &Monitor{
		duration: opts.Duration,
		interval: interval,
		barWidth: barWidth,
		out:      out,
		handles:  handles,
	}
}

// Run drives the loop until the duration elapses, a critical process
// exits, or ctx is canceled. It terminates normally once elapsed time
// reaches the configured duration.
// Run 驱动循环直到时长耗尽、关键进程退出或 ctx 被取消。
// 当运行时间达到配置时长时正常结束。
func (m *Monitor) Run(ctx context.Context) Outcome {
	start := time.Now()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	lastRendered := -1

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(m.out)
			return Outcome{Kind: Interrupted}
		case <-ticker.C:
		}

		elapsed := time.Since(start)
		if elapsed >= m.duration {
			fmt.Fprintln(m.out)
			return Outcome{Kind: Completed}
		}

		// Render at most once per elapsed second / 每经过一秒最多渲染一次
		if sec := int(elapsed.Seconds()); sec != lastRendered {
			lastRendered = sec
			m.render(sec)
		}

		// Non-blocking liveness poll of every critical handle
		// 对每个关键句柄进行非阻塞存活轮询
		for _, h := range m.handles {
			if !h.Alive() {
				fmt.Fprintln(m.out)
				return Outcome{Kind: ProcessExited, Component: h.Name()}
			}
		}
	}
}

// render rewrites the proportional progress bar in place
// render 原地重写比例进度条
func (m *Monitor) render(elapsedSec int) {
	totalSec := int(m.duration.Seconds())
	if totalSec <= 0 {
		return
	}

	percent := elapsedSec * 100 / totalSec
	if percent > 100 {
		percent = 100
	}
	filled := percent * m.barWidth / 100

	bar := strings.Repeat("█", filled)
	space := strings.Repeat(" ", m.barWidth-filled)
	fmt.Fprintf(m.out, "\rProgress: [%s%s] %d%% (%ds / %ds)", bar, space, percent, elapsedSec, totalSec)
}
