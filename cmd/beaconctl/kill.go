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
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/beacon-exchange/beaconctl/internal/logging"
	"github.com/beacon-exchange/beaconctl/internal/reaper"
)

var (
	cleanLogs bool
	keepLogs  bool
)

// killCmd hunts down every Beacon process on the system, whoever started it
// killCmd 清理系统上的所有 Beacon 进程，无论由谁启动
var killCmd = &cobra.Command{
	Use:   "kill",
	Short: "Kill all Beacon processes system-wide / 清理系统上的所有 Beacon 进程",
	Long: `Kill discovers every process matching the Beacon component patterns,
terminates it gracefully, escalates to SIGKILL when needed, and verifies
nothing remains. It makes no assumption about who started the processes.
kill 发现所有匹配 Beacon 组件模式的进程，优雅终止并在需要时升级为 SIGKILL，
随后验证无残留。它不假设这些进程由谁启动。`,
	RunE: runKill,
}

func init() {
	killCmd.Flags().BoolVar(&cleanLogs, "clean-logs", false, "delete temporary log files without asking")
	killCmd.Flags().BoolVar(&keepLogs, "keep-logs", false, "keep temporary log files without asking")
}

// runKill executes one full cleanup pass
// runKill 执行一次完整清理
func runKill(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Log)
	defer logger.Sync() //nolint:errcheck

	mode := reaper.LogsAsk
	switch {
	case cleanLogs && keepLogs:
		return fmt.Errorf("--clean-logs and --keep-logs are mutually exclusive")
	case cleanLogs:
		mode = reaper.LogsDelete
	case keepLogs:
		mode = reaper.LogsKeep
	}

	r := &reaper.Reaper{
		Patterns: cfg.Reaper.Patterns,
		Grace:    cfg.Reaper.Grace,
		Ports:    cfg.Reaper.Ports,
		LogGlob:  cfg.Reaper.LogGlob,
		LogMode:  mode,
		Prompt:   askYesNo,
		Scanner:  &reaper.PgrepScanner{SelfPID: os.Getpid()},
		Signaler: reaper.KillSignaler{},
		Out:      os.Stdout,
		Log:      logger,
	}

	report, err := r.Run(cmd.Context())
	if err != nil {
		return err
	}
	if report.ExitCode() != 0 {
		return fmt.Errorf("%d process(es) still running after cleanup", len(report.Remaining))
	}
	return nil
}

// askYesNo asks an interactive yes/no question on stdin
// askYesNo 在 stdin 上交互式询问是/否
func askYesNo(question string) (bool, error) {
	fmt.Printf("%s [y/N]: ", question)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
