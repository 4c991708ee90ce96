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
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const bannerLine = "═══════════════════════════════════════════════════════════════"

// Start launches the startup steps in order. Per step: launch, verify
// readiness, promote to Running, pause for the cooldown. The first failed
// step aborts every later step; previously started processes are torn down
// in reverse order before the error is returned.
// Start 按顺序执行启动步骤。每步：启动、验证就绪、提升为 Running、暂停冷却时间。
// 第一个失败的步骤会中止其后所有步骤；在返回错误前，已启动的进程按逆序被关闭。
//
// Launch failure and early exit during verification are the same failure path.
// 启动失败与验证期间的提前退出走同一条失败路径。
func (s *Session) Start(ctx context.Context) error {
	s.startedAt = time.Now()

	for i, step := range s.steps {
		if err := s.runStep(ctx, i, step); err != nil {
			// An operator interrupt during a settle or cooldown wait is
			// not a step failure: tear down and report the cancellation
			// itself so the caller can exit cleanly.
			// 稳定或冷却等待期间的操作员中断不是步骤失败：
			// 关闭后原样报告取消，让调用方干净退出。
			if errors.Is(err, context.Canceled) {
				fmt.Fprintln(s.out, "Received interrupt, shutting down...")
				s.log.Info("startup interrupted",
					zap.Int("step", i+1),
					zap.String("component", step.Name))
				s.Shutdown()
				return err
			}

			fmt.Fprintf(s.out, "✗ STEP %d FAILED - %v\n", i+1, err)
			s.log.Error("startup step failed",
				zap.Int("step", i+1),
				zap.String("component", step.Name),
				zap.Error(err))

			// Tear down every previously started process before
			// signaling failure. Steps i+1..n are never launched.
			// 在报告失败前关闭所有已启动的进程。第 i+1..n 步不会被启动。
			s.Shutdown()
			return &StartupError{Step: i + 1, Name: step.Name, Err: err}
		}
	}

	return nil
}

// runStep executes one startup step / 执行一个启动步骤
func (s *Session) runStep(ctx context.Context, i int, step Step) error {
	stepStart := time.Now()

	fmt.Fprintln(s.out, bannerLine)
	fmt.Fprintf(s.out, "  Step %d/%d - %s\n", i+1, len(s.steps), step.Name)
	fmt.Fprintf(s.out, "  %s\n", stepStart.Format("15:04:05"))
	fmt.Fprintln(s.out, bannerLine)

	for _, line := range step.PreLines {
		fmt.Fprintln(s.out, line)
	}

	h, err := step.Launch()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.started = append(s.started, entry{handle: h, critical: step.Critical})
	s.mu.Unlock()

	s.log.Info("component launched",
		zap.String("component", step.Name),
		zap.Int("pid", h.PID()))

	// Verification failure at this point counts as a failed step even
	// though the process was launched; the caller tears it down.
	// 此时验证失败也算步骤失败，尽管进程已启动；由调用方负责关闭。
	if err := step.Probe.Verify(ctx, h); err != nil {
		return err
	}

	h.MarkRunning()

	for _, line := range step.PostLines {
		fmt.Fprintln(s.out, line)
	}
	fmt.Fprintf(s.out, "* ✓ STEP %d PASSED (%ds)\n\n", i+1, int(time.Since(stepStart).Seconds()))

	if step.Cooldown > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(step.Cooldown):
		}
	}

	return nil
}
