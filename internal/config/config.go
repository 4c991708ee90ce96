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

// Package config provides configuration management for beaconctl.
// config 包提供 beaconctl 的配置管理功能。
//
// Configuration loading priority (highest to lowest):
// 配置加载优先级（从高到低）：
// 1. Environment variables / 环境变量
// 2. Configuration file / 配置文件
// 3. Default values / 默认值
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Default configuration values
// 默认配置值
const (
	DefaultConfigPath      = "/etc/beaconctl/config.yaml"
	DefaultDuration        = 60 // seconds / 秒
	DefaultExchangeHost    = "127.0.0.1"
	DefaultExchangePort    = 9000
	DefaultMulticastAddr   = "239.255.0.1"
	DefaultMulticastPort   = 12345
	DefaultAlgorithmLog    = "/tmp/beacon_algo.log"
	DefaultReaperLogGlob   = "/tmp/beacon_*.log"
	DefaultGracefulTimeout = 2 * time.Second
	DefaultLogLevel        = "info"
	DefaultLogFile         = "/var/log/beaconctl/beaconctl.log"
	DefaultLogMaxSize      = 50 // MB
	DefaultLogMaxBackups   = 3
	DefaultLogMaxAge       = 7 // days
	DefaultHistoryPath     = "~/.beacon/sessions.db"
)

// Readiness verification modes for startup steps
// 启动步骤的就绪验证模式
const (
	ReadinessSettle    = "settle"
	ReadinessTCP       = "tcp"
	ReadinessLogMarker = "logmarker"
)

// DefaultReaperPatterns are the command-line patterns targeted by the reaper.
// They track the actual names of the Beacon component binaries.
// DefaultReaperPatterns 是 reaper 目标进程的命令行匹配模式。
// 它们必须与 Beacon 组件二进制文件的实际名称保持一致。
var DefaultReaperPatterns = []string{
	"exchange_matching_engine",
	"exchange_market_data_playback",
	"exchange_market_data_generator",
	"client_algorithm",
	"client_algo",
	"algo_twap",
	"algo_template",
	"algo_vwap",
	"udp_listener.py",
	"test_pillar",
	"test_cme",
}

// Config represents the beaconctl configuration
// Config 表示 beaconctl 配置
type Config struct {
	// Exchange endpoint configuration / 交易所端点配置
	Exchange ExchangeConfig `mapstructure:"exchange" yaml:"exchange"`

	// Multicast market data configuration / 组播行情配置
	Multicast MulticastConfig `mapstructure:"multicast" yaml:"multicast"`

	// Binaries holds the managed component binary paths / 托管组件二进制路径
	Binaries BinariesConfig `mapstructure:"binaries" yaml:"binaries"`

	// Data holds market data input paths / 行情数据输入路径
	Data DataConfig `mapstructure:"data" yaml:"data"`

	// Session controls startup sequencing and teardown / 启动编排与关闭控制
	Session SessionConfig `mapstructure:"session" yaml:"session"`

	// Monitor controls the progress loop / 进度循环控制
	Monitor MonitorConfig `mapstructure:"monitor" yaml:"monitor"`

	// Reaper controls the system-wide cleanup pass / 系统级清理配置
	Reaper ReaperConfig `mapstructure:"reaper" yaml:"reaper"`

	// Capture controls managed-process output capture / 托管进程输出捕获配置
	Capture CaptureConfig `mapstructure:"capture" yaml:"capture"`

	// Log configuration / 日志配置
	Log LogConfig `mapstructure:"log" yaml:"log"`

	// History controls the run-session history store / 运行会话历史存储配置
	History HistoryConfig `mapstructure:"history" yaml:"history"`
}

// ExchangeConfig contains the matching engine endpoint
// ExchangeConfig 包含撮合引擎端点
type ExchangeConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// MulticastConfig contains the market data multicast endpoint
// MulticastConfig 包含行情组播端点
type MulticastConfig struct {
	Address string `mapstructure:"address" yaml:"address"`
	Port    int    `mapstructure:"port" yaml:"port"`
}

// BinariesConfig contains the managed component binary paths
// BinariesConfig 包含托管组件二进制路径
type BinariesConfig struct {
	// MatchingEngine is the OUCH matching engine binary
	// MatchingEngine 是 OUCH 撮合引擎二进制
	MatchingEngine string `mapstructure:"matching_engine" yaml:"matching_engine"`

	// Algorithm is the trading algorithm client binary
	// Algorithm 是交易算法客户端二进制
	Algorithm string `mapstructure:"algorithm" yaml:"algorithm"`

	// MarketData is the market data playback binary
	// MarketData 是行情回放二进制
	MarketData string `mapstructure:"market_data" yaml:"market_data"`
}

// DataConfig contains market data input paths
// DataConfig 包含行情数据输入路径
type DataConfig struct {
	// MarketDataFile is the captured ITCH file replayed by the playback binary
	// MarketDataFile 是回放二进制重放的 ITCH 文件
	MarketDataFile string `mapstructure:"market_data_file" yaml:"market_data_file"`

	// MarketDataConfig is the playback configuration file
	// MarketDataConfig 是回放配置文件
	MarketDataConfig string `mapstructure:"market_data_config" yaml:"market_data_config"`
}

// SessionConfig controls startup sequencing and coordinated shutdown
// SessionConfig 控制启动编排与协调关闭
type SessionConfig struct {
	// SettleEngine is the post-launch settle delay for the matching engine
	// SettleEngine 是撮合引擎启动后的稳定等待时间
	SettleEngine time.Duration `mapstructure:"settle_engine" yaml:"settle_engine"`

	// SettleAlgorithm is the post-launch settle delay for the algorithm
	// SettleAlgorithm 是算法启动后的稳定等待时间
	SettleAlgorithm time.Duration `mapstructure:"settle_algorithm" yaml:"settle_algorithm"`

	// SettleMarketData is the post-launch settle delay for market data playback
	// SettleMarketData 是行情回放启动后的稳定等待时间
	SettleMarketData time.Duration `mapstructure:"settle_market_data" yaml:"settle_market_data"`

	// CooldownEngine is the pause between the engine step and the algorithm step
	// CooldownEngine 是引擎步骤与算法步骤之间的暂停时间
	CooldownEngine time.Duration `mapstructure:"cooldown_engine" yaml:"cooldown_engine"`

	// CooldownAlgorithm is the extra pause before market data playback starts,
	// giving the algorithm time to initialize its UDP receiver thread
	// CooldownAlgorithm 是行情回放前的额外暂停，给算法初始化 UDP 接收线程留出时间
	CooldownAlgorithm time.Duration `mapstructure:"cooldown_algorithm" yaml:"cooldown_algorithm"`

	// GracefulTimeout is the bounded wait between SIGTERM and SIGKILL
	// GracefulTimeout 是 SIGTERM 与 SIGKILL 之间的有界等待时间
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout" yaml:"graceful_timeout"`

	// Readiness selects the step verification mode: settle, tcp, or logmarker.
	// The fixed settle delay is a heuristic readiness proxy, not a contract.
	// Readiness 选择步骤验证模式：settle、tcp 或 logmarker。
	// 固定稳定等待只是就绪的启发式代理，不是契约。
	Readiness string `mapstructure:"readiness" yaml:"readiness"`

	// ReadyMarker is the captured-output line the logmarker mode waits for
	// ReadyMarker 是 logmarker 模式等待的捕获输出行
	ReadyMarker string `mapstructure:"ready_marker" yaml:"ready_marker"`
}

// MonitorConfig controls the bounded progress loop
// MonitorConfig 控制有界进度循环
type MonitorConfig struct {
	// PollInterval is the liveness poll cadence (100ms..1s)
	// PollInterval 是存活轮询节奏（100ms..1s）
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`

	// BarWidth is the progress bar width in cells
	// BarWidth 是进度条宽度（格数）
	BarWidth int `mapstructure:"bar_width" yaml:"bar_width"`
}

// ReaperConfig controls the ownership-agnostic cleanup pass
// ReaperConfig 控制无所有权假设的清理过程
type ReaperConfig struct {
	// Patterns are the command-line patterns to hunt for
	// Patterns 是要查找的命令行匹配模式
	Patterns []string `mapstructure:"patterns" yaml:"patterns"`

	// Grace is the pause between SIGTERM and the existence re-check
	// Grace 是 SIGTERM 与存在性复查之间的暂停
	Grace time.Duration `mapstructure:"grace" yaml:"grace"`

	// Ports are inspected for lingering bound sockets (diagnostic only)
	// Ports 用于检查残留的绑定套接字（仅诊断用途）
	Ports []int `mapstructure:"ports" yaml:"ports"`

	// LogGlob matches temporary log files offered for deletion
	// LogGlob 匹配可供删除的临时日志文件
	LogGlob string `mapstructure:"log_glob" yaml:"log_glob"`
}

// CaptureConfig controls managed-process output capture
// CaptureConfig 控制托管进程输出捕获
type CaptureConfig struct {
	// AlgorithmLog is the fixed file receiving the algorithm's combined output.
	// It is the sole channel read by the statistics extractor.
	// AlgorithmLog 是接收算法合并输出的固定文件，是统计提取器读取的唯一通道。
	AlgorithmLog string `mapstructure:"algorithm_log" yaml:"algorithm_log"`
}

// LogConfig contains operational logging settings
// LogConfig 包含运维日志设置
type LogConfig struct {
	// Level is the log level (debug, info, warn, error)
	// Level 是日志级别（debug, info, warn, error）
	Level string `mapstructure:"level" yaml:"level"`

	// File is the log file path; empty disables the file sink
	// File 是日志文件路径；为空则禁用文件输出
	File string `mapstructure:"file" yaml:"file"`

	// MaxSize is the maximum size of the log file in MB before rotation
	// MaxSize 是日志文件轮转前的最大大小（MB）
	MaxSize int `mapstructure:"max_size" yaml:"max_size"`

	// MaxBackups is the maximum number of rotated files to retain
	// MaxBackups 是保留的轮转文件最大数量
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`

	// MaxAge is the maximum number of days to retain rotated files
	// MaxAge 是保留轮转文件的最大天数
	MaxAge int `mapstructure:"max_age" yaml:"max_age"`
}

// HistoryConfig contains run-session history store settings
// HistoryConfig 包含运行会话历史存储设置
type HistoryConfig struct {
	// Enabled toggles session history recording
	// Enabled 控制是否记录会话历史
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Path is the SQLite database file path
	// Path 是 SQLite 数据库文件路径
	Path string `mapstructure:"path" yaml:"path"`
}

// Load loads configuration from file and environment variables
// Load 从文件和环境变量加载配置
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set default values / 设置默认值
	setDefaults(v)

	// Set config file path / 设置配置文件路径
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Check environment variable / 检查环境变量
		envPath := os.Getenv("BEACONCTL_CONFIG_PATH")
		if envPath != "" {
			v.SetConfigFile(envPath)
		} else {
			v.SetConfigFile(DefaultConfigPath)
		}
	}

	// Enable environment variable override / 启用环境变量覆盖
	v.SetEnvPrefix("BEACON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file / 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error if we have defaults
		// 如果有默认值，配置文件未找到不是错误
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			// Check if file exists / 检查文件是否存在
			if _, statErr := os.Stat(v.ConfigFileUsed()); statErr == nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// File doesn't exist, use defaults / 文件不存在，使用默认值
		}
	}

	// Unmarshal config / 解析配置
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// Exchange defaults / 交易所默认值
	v.SetDefault("exchange.host", DefaultExchangeHost)
	v.SetDefault("exchange.port", DefaultExchangePort)

	// Multicast defaults / 组播默认值
	v.SetDefault("multicast.address", DefaultMulticastAddr)
	v.SetDefault("multicast.port", DefaultMulticastPort)

	// Binary path defaults, relative to the Beacon source tree
	// 二进制路径默认值，相对于 Beacon 源码树
	v.SetDefault("binaries.matching_engine", "src/apps/exchange_matching_engine/build/exchange_matching_engine")
	v.SetDefault("binaries.algorithm", "src/apps/client_algorithm/build/algo_template")
	v.SetDefault("binaries.market_data", "src/apps/exchange_market_data_playback/build/exchange_market_data_playback")

	// Data defaults / 数据默认值
	v.SetDefault("data.market_data_file", "src/apps/exchange_market_data_generator/output.itch")
	v.SetDefault("data.market_data_config", "src/apps/exchange_market_data_playback/config_udp_slow.json")

	// Session defaults / 会话默认值
	v.SetDefault("session.settle_engine", time.Second)
	v.SetDefault("session.settle_algorithm", time.Second)
	v.SetDefault("session.settle_market_data", time.Second)
	v.SetDefault("session.cooldown_engine", time.Second)
	v.SetDefault("session.cooldown_algorithm", 2*time.Second)
	v.SetDefault("session.graceful_timeout", DefaultGracefulTimeout)
	v.SetDefault("session.readiness", ReadinessSettle)
	v.SetDefault("session.ready_marker", "Connected")

	// Monitor defaults / 监控默认值
	v.SetDefault("monitor.poll_interval", 100*time.Millisecond)
	v.SetDefault("monitor.bar_width", 50)

	// Reaper defaults / 清理默认值
	v.SetDefault("reaper.patterns", DefaultReaperPatterns)
	v.SetDefault("reaper.grace", 100*time.Millisecond)
	v.SetDefault("reaper.ports", []int{DefaultExchangePort, DefaultMulticastPort})
	v.SetDefault("reaper.log_glob", DefaultReaperLogGlob)

	// Capture defaults / 捕获默认值
	v.SetDefault("capture.algorithm_log", DefaultAlgorithmLog)

	// Log defaults / 日志默认值
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.file", DefaultLogFile)
	v.SetDefault("log.max_size", DefaultLogMaxSize)
	v.SetDefault("log.max_backups", DefaultLogMaxBackups)
	v.SetDefault("log.max_age", DefaultLogMaxAge)

	// History defaults / 历史默认值
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", DefaultHistoryPath)
}

// Validate validates the configuration
// Validate 验证配置
func (c *Config) Validate() error {
	// Validate endpoints / 验证端点
	if c.Exchange.Host == "" {
		return errors.New("exchange.host is required")
	}
	if c.Exchange.Port <= 0 || c.Exchange.Port > 65535 {
		return fmt.Errorf("exchange.port must be in 1..65535, got %d", c.Exchange.Port)
	}
	if c.Multicast.Address == "" {
		return errors.New("multicast.address is required")
	}
	if c.Multicast.Port <= 0 || c.Multicast.Port > 65535 {
		return fmt.Errorf("multicast.port must be in 1..65535, got %d", c.Multicast.Port)
	}

	// Validate binary paths / 验证二进制路径
	if c.Binaries.MatchingEngine == "" || c.Binaries.Algorithm == "" || c.Binaries.MarketData == "" {
		return errors.New("binaries.matching_engine, binaries.algorithm and binaries.market_data are required")
	}

	// Validate session timings / 验证会话时间参数
	if c.Session.GracefulTimeout <= 0 {
		return errors.New("session.graceful_timeout must be positive")
	}
	switch c.Session.Readiness {
	case ReadinessSettle, ReadinessTCP, ReadinessLogMarker:
	default:
		return fmt.Errorf("invalid session.readiness: %s (must be settle, tcp, or logmarker)", c.Session.Readiness)
	}

	// The poll cadence is bounded: at least once per second, no finer than 100ms
	// 轮询节奏有界：至少每秒一次，不细于 100ms
	if c.Monitor.PollInterval < 100*time.Millisecond || c.Monitor.PollInterval > time.Second {
		return fmt.Errorf("monitor.poll_interval must be in [100ms, 1s], got %v", c.Monitor.PollInterval)
	}
	if c.Monitor.BarWidth <= 0 {
		return errors.New("monitor.bar_width must be positive")
	}

	// Validate reaper configuration / 验证清理配置
	if len(c.Reaper.Patterns) == 0 {
		return errors.New("reaper.patterns must not be empty")
	}
	if c.Reaper.Grace <= 0 {
		return errors.New("reaper.grace must be positive")
	}

	if c.Capture.AlgorithmLog == "" {
		return errors.New("capture.algorithm_log is required")
	}

	// Validate log level / 验证日志级别
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level)
	}

	if c.History.Enabled && c.History.Path == "" {
		return errors.New("history.path is required when history is enabled")
	}

	return nil
}

// ToYAML serializes the effective configuration to YAML format
// ToYAML 将生效配置序列化为 YAML 格式
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// LoadFromYAML loads configuration from YAML bytes
// LoadFromYAML 从 YAML 字节加载配置
func LoadFromYAML(yamlData []byte) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Set defaults first / 首先设置默认值
	setDefaults(v)

	// Read from bytes / 从字节读取
	if err := v.ReadConfig(strings.NewReader(string(yamlData))); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Unmarshal config / 解析配置
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// ExpandHome expands a leading ~ in a path against the current user's home.
// ExpandHome 将路径开头的 ~ 展开为当前用户的主目录。
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return home + path[1:]
	}
	return path
}
