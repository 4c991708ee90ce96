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

package history

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestStore opens a store in a fresh temp directory
// openTestStore 在新的临时目录中打开存储
func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "beacon", "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// TestRecordAndRecent tests the basic round trip
// TestRecordAndRecent 测试基本的写入读取流程
func TestRecordAndRecent(t *testing.T) {
	store := openTestStore(t)

	rec := &SessionRecord{
		SessionID:   uuid.NewString(),
		Outcome:     OutcomeCompleted,
		DurationSec: 60,
		Processes: ProcessSummaries{
			{Name: "Matching Engine", PID: 100, State: "terminated", ExitCode: 0},
			{Name: "Algorithm", PID: 200, State: "exited", ExitCode: 0},
		},
		Statistics: "Orders Sent: 10",
		StartedAt:  time.Now().Add(-time.Minute),
		FinishedAt: time.Now(),
	}
	require.NoError(t, store.Record(rec))

	recs, err := store.Recent(10)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	got := recs[0]
	assert.Equal(t, rec.SessionID, got.SessionID)
	assert.Equal(t, OutcomeCompleted, got.Outcome)
	assert.Equal(t, 60, got.DurationSec)
	assert.Equal(t, "Orders Sent: 10", got.Statistics)

	// The JSON column survives the round trip / JSON 列在读写后保持一致
	require.Len(t, got.Processes, 2)
	assert.Equal(t, "Matching Engine", got.Processes[0].Name)
	assert.Equal(t, 100, got.Processes[0].PID)
	assert.Equal(t, "exited", got.Processes[1].State)
}

// TestRecentOrderAndLimit tests newest-first ordering and the limit cap
// TestRecentOrderAndLimit 测试倒序排列与条数上限
func TestRecentOrderAndLimit(t *testing.T) {
	store := openTestStore(t)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		rec := &SessionRecord{
			SessionID:   fmt.Sprintf("session-%d", i),
			Outcome:     OutcomeCompleted,
			DurationSec: 60,
			StartedAt:   base.Add(time.Duration(i) * time.Minute),
			FinishedAt:  base.Add(time.Duration(i+1) * time.Minute),
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, store.Record(rec))
	}

	recs, err := store.Recent(3)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "session-4", recs[0].SessionID)
	assert.Equal(t, "session-3", recs[1].SessionID)
	assert.Equal(t, "session-2", recs[2].SessionID)
}

// TestRecentDefaultLimit tests the non-positive limit fallback
// TestRecentDefaultLimit 测试非正数上限的回退
func TestRecentDefaultLimit(t *testing.T) {
	store := openTestStore(t)

	recs, err := store.Recent(0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

// TestDuplicateSessionID tests the unique index on session IDs
// TestDuplicateSessionID 测试会话 ID 的唯一索引
func TestDuplicateSessionID(t *testing.T) {
	store := openTestStore(t)

	rec := &SessionRecord{SessionID: "dup", Outcome: OutcomeInterrupted}
	require.NoError(t, store.Record(rec))

	dup := &SessionRecord{SessionID: "dup", Outcome: OutcomeCompleted}
	assert.Error(t, store.Record(dup))
}

// TestNilProcessSummaries tests that a nil JSON column stays nil
// TestNilProcessSummaries 测试 nil JSON 列保持为 nil
func TestNilProcessSummaries(t *testing.T) {
	store := openTestStore(t)

	rec := &SessionRecord{SessionID: uuid.NewString(), Outcome: OutcomeStartupFailed, FailedStep: 2}
	require.NoError(t, store.Record(rec))

	recs, err := store.Recent(1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Nil(t, recs[0].Processes)
	assert.Equal(t, 2, recs[0].FailedStep)
}
