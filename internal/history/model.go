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

// Package history persists a local record of completed simulation sessions.
// history 包在本地持久化已完成仿真会话的记录。
package history

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Outcome represents how a session ended.
// Outcome 表示会话的结束方式。
type Outcome string

const (
	// OutcomeCompleted indicates the session ran its full duration.
	// OutcomeCompleted 表示会话运行了完整时长。
	OutcomeCompleted Outcome = "completed"
	// OutcomeProcessExit indicates a component exited mid-run.
	// OutcomeProcessExit 表示组件在运行中途退出。
	OutcomeProcessExit Outcome = "process_exit"
	// OutcomeInterrupted indicates the operator cancelled the session.
	// OutcomeInterrupted 表示操作员取消了会话。
	OutcomeInterrupted Outcome = "interrupted"
	// OutcomeStartupFailed indicates the startup sequence aborted.
	// OutcomeStartupFailed 表示启动序列中止。
	OutcomeStartupFailed Outcome = "startup_failed"
)

// ProcessSummary captures the final state of one managed component.
// ProcessSummary 记录单个受管组件的最终状态。
type ProcessSummary struct {
	Name     string `json:"name"`
	PID      int    `json:"pid"`
	State    string `json:"state"`
	ExitCode int    `json:"exit_code"`
}

// ProcessSummaries is the JSON column holding per-component final states.
// ProcessSummaries 是保存各组件最终状态的 JSON 列。
type ProcessSummaries []ProcessSummary

// Value implements the driver.Valuer interface for database storage.
// Value 实现 driver.Valuer 接口用于数据库存储。
func (s ProcessSummaries) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

// Scan implements the sql.Scanner interface for database retrieval.
// Scan 实现 sql.Scanner 接口用于数据库读取。
func (s *ProcessSummaries) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("history: failed to scan ProcessSummaries - expected []byte")
	}
	return json.Unmarshal(bytes, s)
}

// SessionRecord represents one completed run of the simulation stack.
// SessionRecord 表示仿真栈的一次完整运行记录。
type SessionRecord struct {
	ID          uint             `json:"id" gorm:"primaryKey;autoIncrement"`
	SessionID   string           `json:"session_id" gorm:"size:50;uniqueIndex;not null"`
	Outcome     Outcome          `json:"outcome" gorm:"size:20;not null;index"`
	DurationSec int              `json:"duration_sec"`
	FailedStep  int              `json:"failed_step,omitempty"`
	Processes   ProcessSummaries `json:"processes" gorm:"type:json"`
	Statistics  string           `json:"statistics" gorm:"type:text"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  time.Time        `json:"finished_at"`
	CreatedAt   time.Time        `json:"created_at" gorm:"autoCreateTime;index"`
}

// TableName specifies the table name for the SessionRecord model.
// TableName 指定 SessionRecord 模型的表名。
func (SessionRecord) TableName() string {
	return "run_sessions"
}
