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

// Package main is the entry point for the beaconctl orchestrator.
// main 包是 beaconctl 编排器的入口点。
//
// beaconctl drives the Beacon trading simulation stack:
// beaconctl 驱动 Beacon 交易仿真栈：
// - Starts the matching engine, algorithm, and market data playback in order
//   按顺序启动撮合引擎、算法和行情回放
// - Monitors the bounded run and tears everything down in reverse order
//   监控有界运行并按逆序关闭所有组件
// - Hunts down orphaned Beacon processes system-wide
//   在系统范围内清理孤儿 Beacon 进程
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
