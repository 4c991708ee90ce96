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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/beacon-exchange/beaconctl/internal/stats"
)

// statsMarker overrides the statistics marker line
// statsMarker 覆盖统计标记行
var statsMarker string

// statsCmd extracts the final statistics block from a captured log file
// statsCmd 从捕获的日志文件中提取最终统计块
var statsCmd = &cobra.Command{
	Use:   "stats [file]",
	Short: "Extract final statistics from a session log / 从会话日志提取最终统计",
	Long: `Stats scans a captured output file for the final statistics block and
prints it. Without an argument it reads the configured algorithm log.
stats 扫描捕获的输出文件中的最终统计块并打印。
不带参数时读取配置的算法日志文件。`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsMarker, "marker", stats.DefaultMarker, "statistics marker line to search for")
}

// runStats extracts and prints the statistics block
// runStats 提取并打印统计块
func runStats(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) > 0 {
		path = args[0]
	} else {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path = cfg.Capture.AlgorithmLog
	}

	ex := stats.Extractor{Path: path}
	block, ok := ex.Extract(statsMarker)
	if !ok {
		// Absent statistics are an expected state, not a failure.
		// 统计缺失是预期状态，不是失败。
		fmt.Println(stats.Placeholder)
		return nil
	}

	fmt.Println(block)
	return nil
}
