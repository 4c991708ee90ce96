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

// Package stats extracts the final-statistics block from a captured
// output file.
// stats 包从捕获的输出文件中提取最终统计块。
//
// Free-text log scraping is inherently fragile: it depends on exact marker
// text and a line-count heuristic. The narrow Extract capability exists so a
// structured status channel can replace it without touching callers.
// 自由文本日志抓取本质上是脆弱的：它依赖精确的标记文本和行数启发式。
// 提供窄的 Extract 能力是为了将来用结构化状态通道替换时不影响调用方。
package stats

import (
	"os"
	"strings"
)

const (
	// DefaultMarker is the literal final-statistics marker line
	// DefaultMarker 是最终统计标记行的字面文本
	DefaultMarker = "FINAL STATISTICS"

	// Placeholder is emitted when no statistics are found.
	// It is a success, never an error.
	// Placeholder 在未找到统计时输出。这是成功而非错误。
	Placeholder = "(No statistics found in log)"

	// closingBox is the structural delimiter that terminates the block once
	// enough lines have passed the marker
	// closingBox 是在标记之后经过足够行数时终止统计块的结构分隔符
	closingBox = "═══════════"

	// minBodyLines is the minimum line count past the marker before the
	// closing delimiter is honored; it keeps the opening box from
	// terminating the block
	// minBodyLines 是标记后尊重结束分隔符所需的最少行数；避免开头的框线提前终止块
	minBodyLines = 15
)

// shutdownMarkers end the block when they appear; the marker line itself
// is excluded.
// shutdownMarkers 出现时结束统计块；标记行本身被排除。
var shutdownMarkers = []string{"[SIGNAL]", "[SHUTDOWN]"}

// Extractor scans one captured output file
// Extractor 扫描一个捕获的输出文件
type Extractor struct {
	// Path is the captured output file / 捕获输出文件路径
	Path string
}

// Extract searches the file for the first occurrence of marker and returns
// the delimited block around it: starting one line before the marker,
// ending at a shutdown marker (excluded), at the closing box delimiter once
// past the minimum body length (included), or at end of file.
// Extract 在文件中查找标记的第一次出现并返回其附近的分块：从标记前一行开始，
// 到关闭标记（不含）、超过最小行数后的结束框线（含）或文件末尾为止。
//
// A missing, empty, or still-being-written file, or an absent marker, yields
// ok=false. Reads are plain non-exclusive opens; this is best-effort.
// 文件缺失、为空、仍在写入，或标记不存在时返回 ok=false。
// 读取是普通的非独占打开；尽力而为。
func (e Extractor) Extract(marker string) (block string, ok bool) {
	data, err := os.ReadFile(e.Path)
	if err != nil {
		return "", false
	}

	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		if !strings.Contains(line, marker) {
			continue
		}

		// Block starts one line before the marker (the opening box line)
		// 块从标记前一行开始（开头的框线）
		start := i - 1
		if start < 0 {
			start = 0
		}

		var out []string
		j := start
		for j < len(lines) {
			if containsAny(lines[j], shutdownMarkers) {
				break
			}
			out = append(out, lines[j])
			j++

			// The closing box terminates the block, but only once the body
			// is long enough to have passed the latency section.
			// 结束框线终止统计块，但必须等块足够长、已越过延迟统计部分。
			if j < len(lines) && j > start+5 && j > i+minBodyLines && strings.Contains(lines[j], closingBox) {
				out = append(out, lines[j])
				break
			}
		}

		return strings.Join(out, "\n"), true
	}

	return "", false
}

// containsAny reports whether s contains any of the needles
// containsAny 报告 s 是否包含任一子串
func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
