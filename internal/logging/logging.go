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

// Package logging builds the beaconctl operational logger.
// logging 包构建 beaconctl 的运维日志记录器。
//
// The logger is a diagnostics channel only. User-facing run output (banners,
// step results, progress bar) goes straight to stdout.
// 该日志记录器仅用于诊断。面向用户的运行输出（横幅、步骤结果、进度条）直接写到 stdout。
package logging

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/beacon-exchange/beaconctl/internal/config"
)

// New builds a zap logger writing to a rotating file sink.
// If the log directory cannot be created, it degrades to stderr.
// New 构建写入轮转文件的 zap 日志记录器。
// 如果日志目录无法创建，则降级为 stderr 输出。
func New(cfg config.LogConfig) *zap.Logger {
	level := parseLevel(cfg.Level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encCfg)

	sink := fileSink(cfg)
	core := zapcore.NewCore(encoder, sink, level)

	return zap.New(core, zap.AddCaller())
}

// fileSink returns the rotating file sink, or stderr when the file
// path is unusable.
// fileSink 返回轮转文件输出；文件路径不可用时返回 stderr。
func fileSink(cfg config.LogConfig) zapcore.WriteSyncer {
	if cfg.File == "" {
		return zapcore.AddSync(os.Stderr)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		return zapcore.AddSync(os.Stderr)
	}

	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
	})
}

// parseLevel maps a config level string to a zap level
// parseLevel 将配置级别字符串映射为 zap 级别
func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
