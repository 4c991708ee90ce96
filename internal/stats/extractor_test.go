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

package stats

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// writeLog writes content to a temp file and returns an Extractor for it
// writeLog 将内容写入临时文件并返回其 Extractor
func writeLog(t *testing.T, content string) Extractor {
	t.Helper()
	path := filepath.Join(t.TempDir(), "algo.log")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return Extractor{Path: path}
}

const statsBox = "============================================================================="

// basicLog builds a capture with the statistics block terminated by a
// shutdown marker
// basicLog 构造以关闭标记结束统计块的捕获内容
func basicLog() string {
	return strings.Join([]string{
		"[MD] recv=100 proc=100",
		statsBox,
		"                           FINAL STATISTICS",
		statsBox,
		"Market Data Received:  1000",
		"Orders Sent:           10",
		"Executions Received:   8",
		statsBox,
		"[SIGNAL] Received signal 15",
		"trailing noise",
	}, "\n")
}

// TestExtractBasicBlock tests extraction up to the shutdown marker
// TestExtractBasicBlock 测试提取到关闭标记为止的内容
func TestExtractBasicBlock(t *testing.T) {
	ex := writeLog(t, basicLog())

	block, ok := ex.Extract(DefaultMarker)
	require.True(t, ok)

	// Starts one line before the marker: the opening box
	// 从标记前一行开始：即开头的框线
	lines := strings.Split(block, "\n")
	assert.Equal(t, statsBox, lines[0])
	assert.Contains(t, lines[1], "FINAL STATISTICS")

	assert.Contains(t, block, "Orders Sent:           10")
	// The shutdown marker itself is excluded / 关闭标记行本身被排除
	assert.NotContains(t, block, "[SIGNAL]")
	assert.NotContains(t, block, "trailing noise")
}

// TestExtractStopsAtShutdownMarkers tests both shutdown marker variants
// TestExtractStopsAtShutdownMarkers 测试两种关闭标记
func TestExtractStopsAtShutdownMarkers(t *testing.T) {
	for _, marker := range []string{"[SIGNAL]", "[SHUTDOWN]"} {
		t.Run(marker, func(t *testing.T) {
			content := strings.Join([]string{
				statsBox,
				"FINAL STATISTICS",
				statsBox,
				"Orders Sent: 10",
				marker + " stopping",
				"after",
			}, "\n")
			ex := writeLog(t, content)

			block, ok := ex.Extract(DefaultMarker)
			require.True(t, ok)
			assert.NotContains(t, block, marker)
			assert.NotContains(t, block, "after")
			assert.Contains(t, block, "Orders Sent: 10")
		})
	}
}

// TestExtractIncludesLatencyClosingBox tests that a long block keeps its
// closing delimiter
// TestExtractIncludesLatencyClosingBox 测试长统计块保留其结束分隔符
func TestExtractIncludesLatencyClosingBox(t *testing.T) {
	latencyBox := strings.Repeat("═", 75)
	lines := []string{
		statsBox,
		"                           FINAL STATISTICS",
		statsBox,
		"Market Data Received:  1000",
		"Orders Sent:           10",
		"Fills Received:        8",
		statsBox,
		"",
		latencyBox,
		"                    TICK-TO-TRADE LATENCY STATISTICS",
		latencyBox,
		"  Samples:        10 / 10",
		"  Min:            1.2 us",
		"  Mean:           2.4 us",
		"  p50:            2.0 us",
		"  p90:            3.8 us",
		"  p99:            4.5 us",
		"  Max:            9.1 us",
		latencyBox,
		"line after the block",
	}
	ex := writeLog(t, strings.Join(lines, "\n"))

	block, ok := ex.Extract(DefaultMarker)
	require.True(t, ok)

	assert.Contains(t, block, "TICK-TO-TRADE LATENCY STATISTICS")
	assert.Contains(t, block, "p99:            4.5 us")
	// The closing box is included, nothing after it is
	// 结束框线被包含，其后的内容不包含
	assert.True(t, strings.HasSuffix(block, latencyBox))
	assert.NotContains(t, block, "line after the block")
}

// TestExtractEarlyClosingBoxKept tests that the opening box lines never
// terminate a short block prematurely
// TestExtractEarlyClosingBoxKept 测试开头框线不会提前终止较短的块
func TestExtractEarlyClosingBoxKept(t *testing.T) {
	ex := writeLog(t, basicLog())

	block, ok := ex.Extract(DefaultMarker)
	require.True(t, ok)

	// All three box lines of the short block survive / 短块的三条框线全部保留
	assert.Equal(t, 3, strings.Count(block, statsBox))
}

// TestExtractMarkerAtFirstLine tests the bounds guard when the marker has no
// preceding line
// TestExtractMarkerAtFirstLine 测试标记无前一行时的边界保护
func TestExtractMarkerAtFirstLine(t *testing.T) {
	ex := writeLog(t, "FINAL STATISTICS\nOrders Sent: 5\n")

	block, ok := ex.Extract(DefaultMarker)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(block, "FINAL STATISTICS"))
	assert.Contains(t, block, "Orders Sent: 5")
}

// TestExtractAbsent tests the not-found cases
// TestExtractAbsent 测试未找到的情况
func TestExtractAbsent(t *testing.T) {
	tests := []struct {
		name string
		ex   func(t *testing.T) Extractor
	}{
		{"no marker", func(t *testing.T) Extractor {
			return writeLog(t, "[MD] recv=100\n[SIGNAL] stopping\n")
		}},
		{"empty file", func(t *testing.T) Extractor {
			return writeLog(t, "")
		}},
		{"missing file", func(t *testing.T) Extractor {
			return Extractor{Path: filepath.Join(t.TempDir(), "nope.log")}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			block, ok := tt.ex(t).Extract(DefaultMarker)
			assert.False(t, ok)
			assert.Empty(t, block)
		})
	}
}

// TestExtractCustomMarker tests marker override
// TestExtractCustomMarker 测试自定义标记
func TestExtractCustomMarker(t *testing.T) {
	ex := writeLog(t, "====\nSESSION SUMMARY\nOrders: 3\n")

	block, ok := ex.Extract("SESSION SUMMARY")
	require.True(t, ok)
	assert.Contains(t, block, "Orders: 3")
}

// For any log content, the extracted block never contains a shutdown marker
// line, and extraction never panics regardless of where markers sit.
// 对任意日志内容，提取的块绝不包含关闭标记行，且无论标记位置如何提取都不会 panic。
func TestProperty_BlockNeverContainsShutdownMarkers(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 40).Draw(rt, "lines")
		markerAt := rapid.IntRange(0, n-1).Draw(rt, "markerAt")

		lines := make([]string, n)
		for i := 0; i < n; i++ {
			switch {
			case i == markerAt:
				lines[i] = "FINAL STATISTICS"
			case rapid.IntRange(0, 5).Draw(rt, fmt.Sprintf("kind-%d", i)) == 0:
				lines[i] = "[SIGNAL] stop"
			case rapid.IntRange(0, 5).Draw(rt, fmt.Sprintf("box-%d", i)) == 0:
				lines[i] = strings.Repeat("═", 40)
			default:
				lines[i] = fmt.Sprintf("stat line %d", i)
			}
		}

		path := filepath.Join(t.TempDir(), "algo.log")
		if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0644); err != nil {
			rt.Fatalf("write log: %v", err)
		}

		block, ok := Extractor{Path: path}.Extract(DefaultMarker)
		if !ok {
			rt.Fatalf("marker present but not found")
		}
		if strings.Contains(block, "[SIGNAL]") || strings.Contains(block, "[SHUTDOWN]") {
			rt.Errorf("shutdown marker leaked into block:\n%s", block)
		}
	})
}
