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
	"testing"

	"pgregory.net/rapid"

	"github.com/beacon-exchange/beaconctl/internal/process"
)

// For any step sequence and any failing step index, startup must never launch
// a step past the failure, and every process launched before it must end up
// in a terminal state.
// 对任意步骤序列与任意失败步骤序号，启动绝不会执行失败之后的步骤，
// 且失败之前启动的所有进程最终都处于终态。
func TestProperty_AbortNeverLaunchesLaterSteps(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 6).Draw(t, "steps")
		failAt := rapid.IntRange(0, n-1).Draw(t, "failAt")

		rec := &stopRecorder{}
		var launched []*fakeHandle
		launches := make([]bool, n)

		steps := make([]Step, n)
		for i := 0; i < n; i++ {
			i := i
			name := fmt.Sprintf("component-%d", i)
			if i == failAt {
				steps[i] = Step{
					Name: name,
					Launch: func() (process.Handle, error) {
						launches[i] = true
						return nil, errors.New("launch refused")
					},
					Probe: fakeProbe{},
				}
				continue
			}
			steps[i] = Step{
				Name: name,
				Launch: func() (process.Handle, error) {
					launches[i] = true
					h := newFakeHandle(name, rec)
					launched = append(launched, h)
					return h, nil
				},
				Probe: fakeProbe{},
			}
		}

		err := New(steps, Options{}).Start(context.Background())
		if err == nil {
			t.Fatalf("startup should fail at step %d", failAt+1)
		}

		var startupErr *StartupError
		if !errors.As(err, &startupErr) || startupErr.Step != failAt+1 {
			t.Fatalf("expected StartupError at step %d, got %v", failAt+1, err)
		}

		// Nothing past the failure is ever launched / 失败之后的步骤从未被启动
		for i := failAt + 1; i < n; i++ {
			if launches[i] {
				t.Errorf("step %d launched after failure at step %d", i+1, failAt+1)
			}
		}

		// Everything launched before it is terminal / 失败之前启动的进程均处于终态
		for _, h := range launched {
			if !h.State().Terminal() {
				t.Errorf("%s left in non-terminal state %s", h.Name(), h.State())
			}
		}
	})
}

// For any mix of alive and already-dead processes, teardown must stop the
// alive ones in the exact reverse of startup order and never signal the
// dead ones.
// 对任意存活与已死亡进程的组合，关闭必须按启动顺序的精确逆序停止存活进程，
// 且绝不向已死亡进程发送信号。
func TestProperty_TeardownReverseOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(t, "processes")

		rec := &stopRecorder{}
		var launched []*fakeHandle
		steps := make([]Step, n)
		for i := 0; i < n; i++ {
			steps[i] = passingStep(fmt.Sprintf("component-%d", i), rec, &launched)
		}

		sess := New(steps, Options{})
		if err := sess.Start(context.Background()); err != nil {
			t.Fatalf("startup failed: %v", err)
		}

		// A random subset dies before teardown / 随机子集在关闭前死亡
		dead := make([]bool, n)
		var wantStops []string
		for i := n - 1; i >= 0; i-- {
			if rapid.Bool().Draw(t, fmt.Sprintf("dead-%d", i)) {
				dead[i] = true
				launched[i].exit()
			} else {
				wantStops = append(wantStops, launched[i].Name())
			}
		}

		if err := sess.Shutdown(); err != nil {
			t.Fatalf("shutdown failed: %v", err)
		}

		got := rec.stops()
		if len(got) != len(wantStops) {
			t.Fatalf("stopped %v, want %v", got, wantStops)
		}
		for i := range got {
			if got[i] != wantStops[i] {
				t.Fatalf("stop order %v, want %v", got, wantStops)
			}
		}

		// Dead processes were never signaled / 已死亡进程从未被发送信号
		for i, h := range launched {
			if dead[i] && h.stopped > 0 {
				t.Errorf("%s was signaled after exiting", h.Name())
			}
		}
	})
}

// Repeated shutdown calls must stop every process exactly once.
// 重复调用关闭必须让每个进程恰好被停止一次。
func TestProperty_ShutdownIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(t, "processes")
		calls := rapid.IntRange(2, 4).Draw(t, "calls")

		rec := &stopRecorder{}
		var launched []*fakeHandle
		steps := make([]Step, n)
		for i := 0; i < n; i++ {
			steps[i] = passingStep(fmt.Sprintf("component-%d", i), rec, &launched)
		}

		sess := New(steps, Options{})
		if err := sess.Start(context.Background()); err != nil {
			t.Fatalf("startup failed: %v", err)
		}

		for i := 0; i < calls; i++ {
			if err := sess.Shutdown(); err != nil {
				t.Fatalf("shutdown call %d failed: %v", i+1, err)
			}
		}

		for _, h := range launched {
			if h.stopped != 1 {
				t.Errorf("%s stopped %d times, want exactly 1", h.Name(), h.stopped)
			}
		}
	})
}
