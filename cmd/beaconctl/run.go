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

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/beacon-exchange/beaconctl/internal/config"
	"github.com/beacon-exchange/beaconctl/internal/history"
	"github.com/beacon-exchange/beaconctl/internal/logging"
	"github.com/beacon-exchange/beaconctl/internal/monitor"
	"github.com/beacon-exchange/beaconctl/internal/process"
	"github.com/beacon-exchange/beaconctl/internal/readiness"
	"github.com/beacon-exchange/beaconctl/internal/reaper"
	"github.com/beacon-exchange/beaconctl/internal/session"
	"github.com/beacon-exchange/beaconctl/internal/stats"
)

// bannerLine frames the session banners / 框定会话横幅
const bannerLine = "═══════════════════════════════════════════════════════════════"

// baseDir is the Beacon source tree root that relative binary and data
// paths resolve against
// baseDir 是相对二进制与数据路径解析所依据的 Beacon 源码树根目录
var baseDir string

// runCmd starts the full simulation session
// runCmd 启动完整的仿真会话
var runCmd = &cobra.Command{
	Use:   "run [duration]",
	Short: "Run a full simulation session / 运行完整仿真会话",
	Long: `Run starts the matching engine, trading algorithm, and market data
playback in dependency order, monitors the bounded run, and tears
everything down in reverse order when it ends.
run 按依赖顺序启动撮合引擎、交易算法和行情回放，监控有界运行，
并在结束时按逆序关闭所有组件。

The optional duration argument overrides the configured run time in seconds.
可选的 duration 参数以秒为单位覆盖配置的运行时长。`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSession,
}

func init() {
	runCmd.Flags().StringVar(&baseDir, "base-dir", ".", "Beacon source tree root for relative paths")
}

// runSession is the main orchestration flow
// runSession 是主编排流程
func runSession(cmd *cobra.Command, args []string) error {
	// The duration argument is validated before any side effect: an
	// unparsable value must not launch or kill anything.
	// duration 参数在任何副作用之前验证：无法解析的值不得启动或终止任何进程。
	durationSec := 0
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid duration: %s", args[0])
		}
		durationSec = n
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if durationSec == 0 {
		durationSec = config.DefaultDuration
	}

	logger := logging.New(cfg.Log)
	defer logger.Sync() //nolint:errcheck

	// The signal handler only cancels the context. Cleanup runs in the main
	// flow when the cancellation is observed, never inside the handler.
	// 信号处理只取消上下文。清理在主流程观察到取消时执行，绝不在处理器内部执行。
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	o := &orchestrator{
		cfg:      cfg,
		log:      logger,
		out:      os.Stdout,
		baseDir:  baseDir,
		duration: time.Duration(durationSec) * time.Second,
	}
	return o.run(ctx)
}

// orchestrator owns one run invocation end to end
// orchestrator 持有一次运行调用的全过程
type orchestrator struct {
	cfg      *config.Config
	log      *zap.Logger
	out      io.Writer
	baseDir  string
	duration time.Duration
}

// run drives the full session: banner, pre-sweep, preflight, startup,
// monitoring, shutdown, statistics, history.
// run 驱动完整会话：横幅、预清理、预检、启动、监控、关闭、统计、历史记录。
func (o *orchestrator) run(ctx context.Context) error {
	durationSec := int(o.duration.Seconds())

	o.printBanner()
	o.printConfig(durationSec)

	// Leftover processes from a previous run would shadow this one on the
	// same ports, so sweep them quietly first.
	// 上一次运行残留的进程会在相同端口上遮蔽本次运行，因此先静默清理。
	fmt.Fprintln(o.out, "Cleaning up any existing processes...")
	o.presweep(ctx)
	fmt.Fprintln(o.out)

	if err := o.verifyPrerequisites(); err != nil {
		return err
	}

	// An interrupt before anything launched is a clean exit
	// 任何组件启动前的中断为干净退出
	select {
	case <-ctx.Done():
		return nil
	case <-time.After(time.Second):
	}

	// The algorithm's combined output goes to a fixed file; it is the sole
	// channel the statistics extractor reads after shutdown.
	// 算法的合并输出写入固定文件；它是统计提取器在关闭后读取的唯一通道。
	algoLog, err := os.Create(o.cfg.Capture.AlgorithmLog)
	if err != nil {
		return fmt.Errorf("create algorithm log %s: %w", o.cfg.Capture.AlgorithmLog, err)
	}

	sess := session.New(o.buildSteps(durationSec, algoLog), session.Options{
		Duration:        o.duration,
		GracefulTimeout: o.cfg.Session.GracefulTimeout,
		Out:             o.out,
		Logger:          o.log,
	})
	sess.AddSink("algorithm log", algoLog)

	o.log.Info("session starting",
		zap.String("session_id", sess.ID.String()),
		zap.Int("duration_sec", durationSec))

	if err := sess.Start(ctx); err != nil {
		// Start already tore down everything it launched.
		// Start 已经关闭了它启动的所有进程。
		if errors.Is(err, context.Canceled) {
			// Interrupted mid-startup: a clean exit, not a failure.
			// 启动中途被中断：干净退出，不是失败。
			o.log.Info("run interrupted during startup")
			o.recordSession(sess, history.OutcomeInterrupted, "", durationSec, 0)
			return nil
		}
		failedStep := 0
		var startupErr *session.StartupError
		if errors.As(err, &startupErr) {
			failedStep = startupErr.Step
		}
		o.recordSession(sess, history.OutcomeStartupFailed, "", durationSec, failedStep)
		return err
	}

	fmt.Fprintln(o.out, bannerLine)
	fmt.Fprintln(o.out, "  ✓✓✓ ALL SYSTEMS OPERATIONAL ✓✓✓")
	fmt.Fprintf(o.out, "  Total startup time: %ds\n", int(time.Since(sess.StartedAt()).Seconds()))
	fmt.Fprintln(o.out, bannerLine)
	fmt.Fprintln(o.out)
	fmt.Fprintf(o.out, "System will run for %d seconds...\n", durationSec)
	fmt.Fprintln(o.out, "Press Ctrl+C to stop early")
	fmt.Fprintln(o.out)

	outcome := monitor.New(sess.Critical(), monitor.Options{
		Duration:     o.duration,
		PollInterval: o.cfg.Monitor.PollInterval,
		BarWidth:     o.cfg.Monitor.BarWidth,
		Out:          o.out,
	}).Run(ctx)

	switch outcome.Kind {
	case monitor.ProcessExited:
		fmt.Fprintf(o.out, "%s completed\n", outcome.Component)
		o.log.Info("critical process exited early", zap.String("component", outcome.Component))
	case monitor.Interrupted:
		fmt.Fprintln(o.out, "Received interrupt, shutting down...")
		o.log.Info("run interrupted")
	default:
		o.log.Info("run completed", zap.Int("duration_sec", durationSec))
	}
	fmt.Fprintln(o.out)

	// Shutdown flushes and closes the capture sinks, so statistics
	// extraction sees complete output.
	// Shutdown 会刷新并关闭捕获接收器，统计提取因此看到完整输出。
	if err := sess.Shutdown(); err != nil {
		o.log.Warn("shutdown finished with failures", zap.Error(err))
	}

	statsBlock := o.showFinalStatistics()

	o.recordSession(sess, outcomeFor(outcome.Kind), statsBlock, durationSec, 0)

	fmt.Fprintln(o.out)
	fmt.Fprintln(o.out, bannerLine)
	fmt.Fprintln(o.out, "  Session Complete")
	fmt.Fprintln(o.out, bannerLine)
	fmt.Fprintln(o.out)

	return nil
}

// printBanner prints the startup banner / 打印启动横幅
func (o *orchestrator) printBanner() {
	fmt.Fprintln(o.out)
	fmt.Fprintln(o.out, bannerLine)
	fmt.Fprintln(o.out, "  BEACON TRADING SYSTEM - ORCHESTRATED STARTUP")
	fmt.Fprintf(o.out, "  %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintln(o.out, bannerLine)
	fmt.Fprintln(o.out)
}

// printConfig prints the effective session parameters / 打印生效的会话参数
func (o *orchestrator) printConfig(durationSec int) {
	fmt.Fprintln(o.out, "Configuration:")
	fmt.Fprintf(o.out, "  Duration:         %d seconds\n", durationSec)
	fmt.Fprintf(o.out, "  Exchange:         %s:%d\n", o.cfg.Exchange.Host, o.cfg.Exchange.Port)
	fmt.Fprintf(o.out, "  Market Data:      UDP %s:%d\n", o.cfg.Multicast.Address, o.cfg.Multicast.Port)
	fmt.Fprintf(o.out, "  MD File:          %s\n", o.cfg.Data.MarketDataFile)
	fmt.Fprintln(o.out)
}

// presweep runs a quiet, prompt-free reaper pass before startup.
// Failures are tolerated; a dirty system surfaces later as step failures.
// presweep 在启动前执行一次静默、无询问的清理。失败被容忍；
// 系统不干净会在之后表现为步骤失败。
func (o *orchestrator) presweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	r := &reaper.Reaper{
		Patterns: o.cfg.Reaper.Patterns,
		Grace:    o.cfg.Reaper.Grace,
		LogMode:  reaper.LogsKeep,
		Scanner:  &reaper.PgrepScanner{SelfPID: os.Getpid()},
		Signaler: reaper.KillSignaler{},
		Out:      io.Discard,
		Log:      o.log,
	}
	if _, err := r.Run(sweepCtx); err != nil {
		o.log.Warn("pre-run cleanup failed", zap.Error(err))
	}
}

// verifyPrerequisites checks every binary and data file before anything starts
// verifyPrerequisites 在任何组件启动前检查所有二进制和数据文件
func (o *orchestrator) verifyPrerequisites() error {
	checks := []struct {
		name string
		path string
	}{
		{"Matching Engine", o.resolve(o.cfg.Binaries.MatchingEngine)},
		{"Algorithm", o.resolve(o.cfg.Binaries.Algorithm)},
		{"Market Data Playback", o.resolve(o.cfg.Binaries.MarketData)},
	}

	ok := true
	for _, c := range checks {
		if _, err := os.Stat(c.path); err != nil {
			fmt.Fprintf(o.out, "✗ ERROR: %s not built: %s\n", c.name, c.path)
			ok = false
		}
	}

	mdFile := o.resolve(o.cfg.Data.MarketDataFile)
	if _, err := os.Stat(mdFile); err != nil {
		fmt.Fprintf(o.out, "✗ ERROR: Market data file not found: %s\n", mdFile)
		ok = false
	}

	if !ok {
		return fmt.Errorf("prerequisites not satisfied")
	}

	fmt.Fprintln(o.out, "✓ All prerequisites satisfied")
	fmt.Fprintln(o.out)
	return nil
}

// buildSteps assembles the three startup steps in dependency order:
// matching engine, algorithm, market data playback.
// buildSteps 按依赖顺序组装三个启动步骤：撮合引擎、算法、行情回放。
func (o *orchestrator) buildSteps(durationSec int, algoSink io.Writer) []session.Step {
	cfg := o.cfg
	exchangeAddr := fmt.Sprintf("%s:%d", cfg.Exchange.Host, cfg.Exchange.Port)
	mdFile := o.resolve(cfg.Data.MarketDataFile)

	mdPreLines := []string{
		fmt.Sprintf("* Reading file: %s", cfg.Data.MarketDataFile),
	}
	if info, err := os.Stat(mdFile); err == nil {
		mdPreLines = append(mdPreLines,
			fmt.Sprintf("    Size:        %d bytes", info.Size()),
			fmt.Sprintf("    Messages:    %d", info.Size()/33))
	}
	mdPreLines = append(mdPreLines,
		"* Mode: Continuous playback at 10,000 msgs/sec",
		"* Speed factor: 1x (real-time)",
		"",
		"* UDP Multicast Configuration:",
		fmt.Sprintf("    Address:     %s:%d", cfg.Multicast.Address, cfg.Multicast.Port),
		"    TTL:         1 (localhost only)",
		"    Loopback:    Enabled",
		"",
	)

	return []session.Step{
		{
			Name: "Starting OUCH Matching Engine",
			Launch: func() (process.Handle, error) {
				return process.Launch(process.Spec{
					Name: "Matching Engine",
					Path: o.resolve(cfg.Binaries.MatchingEngine),
					Args: []string{strconv.Itoa(cfg.Exchange.Port)},
				})
			},
			Probe:    o.probeFor("engine"),
			Cooldown: cfg.Session.CooldownEngine,
			PreLines: []string{"* Creating TCP stack..."},
			PostLines: []string{
				fmt.Sprintf("* Binding to port %d...", cfg.Exchange.Port),
				"* Ready for connections",
			},
		},
		{
			Name: "Starting Your Algorithm",
			Launch: func() (process.Handle, error) {
				return process.Launch(process.Spec{
					Name: "Algorithm",
					Path: o.resolve(cfg.Binaries.Algorithm),
					Args: []string{
						cfg.Multicast.Address,
						strconv.Itoa(cfg.Multicast.Port),
						cfg.Exchange.Host,
						strconv.Itoa(cfg.Exchange.Port),
						strconv.Itoa(durationSec),
					},
					Output: algoSink,
				})
			},
			Probe:    o.probeFor("algorithm"),
			Cooldown: cfg.Session.CooldownAlgorithm,
			Critical: true,
			PreLines: []string{
				"* Initiating TCP connection to matching engine...",
				fmt.Sprintf("    Target: %s", exchangeAddr),
			},
			PostLines: []string{
				fmt.Sprintf("* ✓ Connected [%s]", exchangeAddr),
				"* Algorithm threads initialized",
				"    Core 0: Market Data Receiver",
				"    Core 1: Trading Logic (HOT PATH)",
				"    Core 2: Execution Report Processor",
				"",
			},
		},
		{
			Name: "Playing Market Data",
			Launch: func() (process.Handle, error) {
				return process.Launch(process.Spec{
					Name: "Market Data Playback",
					Path: o.resolve(cfg.Binaries.MarketData),
					Args: []string{
						"--config", o.resolve(cfg.Data.MarketDataConfig),
						mdFile,
					},
				})
			},
			Probe:     o.probeFor("market_data"),
			PreLines:  mdPreLines,
			PostLines: []string{"* Playback started"},
		},
	}
}

// probeFor maps the configured readiness mode onto one step.
// TCP dialing only makes sense against the engine's listening port, and the
// log marker only against the algorithm's captured output; every other step
// falls back to its settle delay.
// probeFor 将配置的就绪模式映射到某个步骤。TCP 拨号只对引擎的监听端口有意义，
// 日志标记只对算法的捕获输出有意义；其余步骤退回各自的稳定等待。
func (o *orchestrator) probeFor(component string) readiness.Probe {
	cfg := o.cfg

	settle := func(d time.Duration) readiness.Probe {
		return readiness.Settle{Delay: d}
	}

	switch component {
	case "engine":
		if cfg.Session.Readiness == config.ReadinessTCP {
			return readiness.TCP{
				Addr:     fmt.Sprintf("%s:%d", cfg.Exchange.Host, cfg.Exchange.Port),
				Timeout:  5 * time.Second,
				Interval: 100 * time.Millisecond,
			}
		}
		return settle(cfg.Session.SettleEngine)
	case "algorithm":
		if cfg.Session.Readiness == config.ReadinessLogMarker {
			return readiness.LogMarker{
				Path:     cfg.Capture.AlgorithmLog,
				Marker:   cfg.Session.ReadyMarker,
				Timeout:  10 * time.Second,
				Interval: 100 * time.Millisecond,
			}
		}
		return settle(cfg.Session.SettleAlgorithm)
	default:
		return settle(cfg.Session.SettleMarketData)
	}
}

// showFinalStatistics prints the extracted statistics block and returns it
// showFinalStatistics 打印提取的统计块并返回其内容
func (o *orchestrator) showFinalStatistics() string {
	fmt.Fprintln(o.out, bannerLine)
	fmt.Fprintln(o.out, "  Final Statistics")
	fmt.Fprintln(o.out, bannerLine)
	fmt.Fprintln(o.out)

	ex := stats.Extractor{Path: o.cfg.Capture.AlgorithmLog}
	block, ok := ex.Extract(stats.DefaultMarker)
	if !ok {
		fmt.Fprintln(o.out, stats.Placeholder)
		return ""
	}

	fmt.Fprintln(o.out, block)
	return block
}

// recordSession persists the session outcome. Recording is best-effort:
// a failure never changes the run's exit status.
// recordSession 持久化会话结果。记录是尽力而为的：失败绝不改变运行的退出状态。
func (o *orchestrator) recordSession(sess *session.Session, outcome history.Outcome, statsBlock string, durationSec, failedStep int) {
	if !o.cfg.History.Enabled {
		return
	}

	store, err := history.Open(config.ExpandHome(o.cfg.History.Path))
	if err != nil {
		o.log.Warn("session history unavailable", zap.Error(err))
		return
	}
	defer store.Close()

	var summaries history.ProcessSummaries
	for _, h := range sess.Started() {
		code, _ := h.ExitCode()
		summaries = append(summaries, history.ProcessSummary{
			Name:     h.Name(),
			PID:      h.PID(),
			State:    string(h.State()),
			ExitCode: code,
		})
	}

	rec := &history.SessionRecord{
		SessionID:   sess.ID.String(),
		Outcome:     outcome,
		DurationSec: durationSec,
		FailedStep:  failedStep,
		Processes:   summaries,
		Statistics:  statsBlock,
		StartedAt:   sess.StartedAt(),
		FinishedAt:  time.Now(),
	}
	if err := store.Record(rec); err != nil {
		o.log.Warn("failed to record session", zap.Error(err))
	}
}

// outcomeFor maps a monitor outcome onto the history outcome
// outcomeFor 将监控结果映射为历史结果
func outcomeFor(kind monitor.Kind) history.Outcome {
	switch kind {
	case monitor.ProcessExited:
		return history.OutcomeProcessExit
	case monitor.Interrupted:
		return history.OutcomeInterrupted
	default:
		return history.OutcomeCompleted
	}
}

// resolve expands a relative path against the base directory
// resolve 将相对路径相对于基础目录展开
func (o *orchestrator) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(o.baseDir, path)
}
