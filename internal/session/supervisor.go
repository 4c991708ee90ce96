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
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Shutdown tears down the started processes in the exact reverse of startup
// order, independent of which failure path triggered it. For each still-alive
// process: graceful signal, bounded wait, forceful escalation. Processes
// already in a terminal state are skipped without signaling.
// Shutdown 按启动顺序的精确逆序关闭已启动的进程，与触发它的失败路径无关。
// 对每个仍存活的进程：优雅信号、有界等待、强制升级。已处于终态的进程被跳过，
// 不会再被发送信号。
//
// Best-effort: a failed teardown attempt never short-circuits the remaining
// processes. Repeated calls are no-ops. All orchestrator-owned output sinks
// are flushed and closed before the call returns.
// 尽力而为：某个进程关闭失败不会中断其余进程的关闭。重复调用为空操作。
// 调用返回前，编排器持有的所有输出接收器都会被刷新并关闭。
func (s *Session) Shutdown() error {
	s.mu.Lock()
	first := !s.shutdown
	s.shutdown = true
	started := make([]entry, len(s.started))
	copy(started, s.started)
	s.mu.Unlock()

	if first && len(started) > 0 {
		fmt.Fprintln(s.out)
		fmt.Fprintln(s.out, bannerLine)
		fmt.Fprintln(s.out, "  Shutting Down System...")
		fmt.Fprintln(s.out, bannerLine)
	}

	var failures []error
	for i := len(started) - 1; i >= 0; i-- {
		h := started[i].handle

		if h.State().Terminal() {
			// Already dead: no signal, no error / 已死亡：不发信号，不报错
			continue
		}

		fmt.Fprintf(s.out, "* Stopping %s (PID: %d)...\n", h.Name(), h.PID())
		if err := h.Stop(s.gracefulTimeout); err != nil {
			// Record and keep going; teardown is never short-circuited
			// 记录后继续；关闭过程绝不中断
			s.log.Warn("teardown attempt failed",
				zap.String("component", h.Name()),
				zap.Error(err))
			failures = append(failures, err)
			continue
		}

		s.log.Info("component stopped",
			zap.String("component", h.Name()),
			zap.String("state", string(h.State())))
	}

	s.CloseSinks()

	if first && len(started) > 0 {
		fmt.Fprintln(s.out, "* Cleanup complete")
		fmt.Fprintln(s.out)
	}

	return errors.Join(failures...)
}
