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

// Package session holds the orchestration session: the ordered managed
// processes of one run, dependency-ordered startup, and coordinated
// reverse-order shutdown.
// session 包持有编排会话：一次运行中有序的托管进程、按依赖顺序的启动，
// 以及按逆序协调的关闭。
//
// One explicit Session value owns every handle started during a run.
// There is no package-level process state.
// 一个显式的 Session 值持有一次运行中启动的所有句柄，没有包级进程状态。
package session

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/beacon-exchange/beaconctl/internal/process"
	"github.com/beacon-exchange/beaconctl/internal/readiness"
)

// Step describes one startup step. Immutable once the run begins.
// Step 描述一个启动步骤。运行开始后不可变。
type Step struct {
	// Name is the component name / 组件名称
	Name string

	// Launch starts the component and returns its handle
	// Launch 启动组件并返回其句柄
	Launch func() (process.Handle, error)

	// Probe verifies readiness after launch / 启动后验证就绪状态
	Probe readiness.Probe

	// Cooldown is the pause after this step passes, before the next launch
	// Cooldown 是该步骤通过后、下一次启动前的暂停时间
	Cooldown time.Duration

	// Critical marks processes whose exit ends the run early
	// Critical 标记退出会提前结束运行的进程
	Critical bool

	// PreLines are printed before launch, PostLines after verification
	// PreLines 在启动前打印，PostLines 在验证通过后打印
	PreLines  []string
	PostLines []string
}

// entry pairs a started handle with its step metadata
// entry 将已启动的句柄与其步骤元数据配对
type entry struct {
	handle   process.Handle
	critical bool
}

// Session is the single-use orchestration value for one invocation:
// the ordered list of started processes plus the run timing.
// Session 是一次调用的单次使用编排值：有序的已启动进程列表加运行时间参数。
type Session struct {
	// ID identifies this run / 标识本次运行
	ID uuid.UUID

	steps           []Step
	duration        time.Duration
	gracefulTimeout time.Duration
	startedAt       time.Time

	out io.Writer
	log *zap.Logger

	mu       sync.Mutex
	started  []entry
	sinks    []namedSink
	shutdown bool
}

// namedSink is an orchestrator-owned output sink, flushed and closed
// exactly once on every exit path.
// namedSink 是编排器持有的输出接收器，在每条退出路径上恰好刷新并关闭一次。
type namedSink struct {
	name   string
	closer io.Closer
	once   *sync.Once
}

// Options configures a Session
// Options 配置 Session
type Options struct {
	// Duration is the configured total run time / 配置的总运行时长
	Duration time.Duration

	// GracefulTimeout bounds the SIGTERM wait per process during teardown
	// GracefulTimeout 限定关闭时每个进程的 SIGTERM 等待时间
	GracefulTimeout time.Duration

	// Out receives user-facing run output; nil discards it
	// Out 接收面向用户的运行输出；为 nil 时丢弃
	Out io.Writer

	// Logger is the diagnostics logger; nil uses a no-op logger
	// Logger 是诊断日志记录器；为 nil 时使用空记录器
	Logger *zap.Logger
}

// New creates a single-use Session for the given startup steps
// New 为给定的启动步骤创建单次使用的 Session
func New(steps []Step, opts Options) *Session {
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Session{
		ID:              uuid.New(),
		steps:           steps,
		duration:        opts.Duration,
		gracefulTimeout: opts.GracefulTimeout,
		out:             out,
		log:             log,
	}
}

// StartedAt returns the run start timestamp / 返回运行开始时间戳
func (s *Session) StartedAt() time.Time { return s.startedAt }

// Duration returns the configured total run time / 返回配置的总运行时长
func (s *Session) Duration() time.Duration { return s.duration }

// Started returns the handles in startup order
// Started 按启动顺序返回句柄
func (s *Session) Started() []process.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	handles := make([]process.Handle, 0, len(s.started))
	for _, e := range s.started {
		handles = append(handles, e.handle)
	}
	return handles
}

// Critical returns the handles whose exit ends the run early
// Critical 返回退出会提前结束运行的句柄
func (s *Session) Critical() []process.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	var handles []process.Handle
	for _, e := range s.started {
		if e.critical {
			handles = append(handles, e.handle)
		}
	}
	return handles
}

// AddSink registers an orchestrator-owned output sink for scoped closing
// AddSink 注册编排器持有的输出接收器，保证作用域内关闭
func (s *Session) AddSink(name string, closer io.Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, namedSink{name: name, closer: closer, once: new(sync.Once)})
}

// CloseSinks flushes and closes every registered sink exactly once.
// It must run before statistics extraction on every exit path.
// CloseSinks 恰好一次刷新并关闭每个注册的接收器。
// 必须在每条退出路径上于统计提取之前执行。
func (s *Session) CloseSinks() {
	s.mu.Lock()
	sinks := s.sinks
	s.mu.Unlock()

	for _, sink := range sinks {
		sink := sink
		sink.once.Do(func() {
			if syncer, ok := sink.closer.(interface{ Sync() error }); ok {
				if err := syncer.Sync(); err != nil {
					s.log.Warn("sink flush failed", zap.String("sink", sink.name), zap.Error(err))
				}
			}
			if err := sink.closer.Close(); err != nil {
				s.log.Warn("sink close failed", zap.String("sink", sink.name), zap.Error(err))
			}
		})
	}
}

// StartupError reports which startup step failed. Steps after it were
// never launched.
// StartupError 报告哪个启动步骤失败。其后的步骤从未被启动。
type StartupError struct {
	// Step is the 1-based index of the failed step / 失败步骤的序号（从 1 开始）
	Step int

	// Name is the failed component name / 失败组件的名称
	Name string

	// Err is the underlying failure / 底层失败原因
	Err error
}

// Error implements the error interface / 实现 error 接口
func (e *StartupError) Error() string {
	return fmt.Sprintf("startup step %d (%s) failed: %v", e.Step, e.Name, e.Err)
}

// Unwrap returns the underlying failure / 返回底层失败原因
func (e *StartupError) Unwrap() error { return e.Err }
