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

	"github.com/beacon-exchange/beaconctl/internal/config"
	"github.com/beacon-exchange/beaconctl/internal/history"
)

// sessionsLimit caps the number of rows printed
// sessionsLimit 限制打印的记录数
var sessionsLimit int

// sessionsCmd lists recent run sessions from the history store
// sessionsCmd 列出历史存储中最近的运行会话
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recent run sessions / 列出最近的运行会话",
	RunE:  runSessions,
}

func init() {
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 10, "maximum number of sessions to list")
}

// runSessions prints the most recent session records
// runSessions 打印最近的会话记录
func runSessions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.History.Enabled {
		return fmt.Errorf("session history is disabled in the configuration")
	}

	store, err := history.Open(config.ExpandHome(cfg.History.Path))
	if err != nil {
		return err
	}
	defer store.Close()

	recs, err := store.Recent(sessionsLimit)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("No sessions recorded yet")
		return nil
	}

	fmt.Printf("%-38s %-16s %-10s %-20s\n", "SESSION", "OUTCOME", "DURATION", "STARTED")
	for _, rec := range recs {
		fmt.Printf("%-38s %-16s %-10s %-20s\n",
			rec.SessionID,
			rec.Outcome,
			fmt.Sprintf("%ds", rec.DurationSec),
			rec.StartedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}
