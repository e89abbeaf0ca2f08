package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestLoad 使用表驱动测试覆盖配置加载的核心场景
func TestLoad(t *testing.T) {
	tests := []struct {
		name       string
		createFile bool
		content    string
		wantErr    bool
		validate   func(t *testing.T, cfg *Config, err error)
	}{
		{
			name:       "正常加载有效YAML",
			createFile: true,
			content: `listen:
  host: "0.0.0.0"
  port: 11111
target:
  host: "127.0.0.1"
  port: 22222
relay:
  backlog: 16
  dial_timeout: 3s
  idle_timeout: 5m
logging:
  level: "debug"
  format: "json"
  file: "portfwd.log"
`,
			wantErr: false,
			validate: func(t *testing.T, cfg *Config, err error) {
				if cfg.Listen.Host != "0.0.0.0" {
					t.Errorf("Listen.Host = %q, 期望 %q", cfg.Listen.Host, "0.0.0.0")
				}
				if cfg.Listen.Port != 11111 {
					t.Errorf("Listen.Port = %d, 期望 %d", cfg.Listen.Port, 11111)
				}
				if cfg.Target.Host != "127.0.0.1" {
					t.Errorf("Target.Host = %q, 期望 %q", cfg.Target.Host, "127.0.0.1")
				}
				if cfg.Target.Port != 22222 {
					t.Errorf("Target.Port = %d, 期望 %d", cfg.Target.Port, 22222)
				}
				if cfg.Relay.Backlog != 16 {
					t.Errorf("Relay.Backlog = %d, 期望 %d", cfg.Relay.Backlog, 16)
				}
				if cfg.Relay.DialTimeout != 3*time.Second {
					t.Errorf("Relay.DialTimeout = %v, 期望 %v", cfg.Relay.DialTimeout, 3*time.Second)
				}
				if cfg.Relay.IdleTimeout != 5*time.Minute {
					t.Errorf("Relay.IdleTimeout = %v, 期望 %v", cfg.Relay.IdleTimeout, 5*time.Minute)
				}
				if cfg.Logging.Level != "debug" {
					t.Errorf("Logging.Level = %q, 期望 %q", cfg.Logging.Level, "debug")
				}
				if cfg.Logging.Format != "json" {
					t.Errorf("Logging.Format = %q, 期望 %q", cfg.Logging.Format, "json")
				}
				if cfg.Logging.File != "portfwd.log" {
					t.Errorf("Logging.File = %q, 期望 %q", cfg.Logging.File, "portfwd.log")
				}
			},
		},
		{
			name:       "部分字段保留默认值",
			createFile: true,
			content: `listen:
  port: 8080
target:
  port: 9090
`,
			wantErr: false,
			validate: func(t *testing.T, cfg *Config, err error) {
				if cfg.Listen.Host != "0.0.0.0" || cfg.Target.Host != "127.0.0.1" {
					t.Errorf("主机应为默认值，实际 Listen=%q Target=%q", cfg.Listen.Host, cfg.Target.Host)
				}
				if cfg.Relay.Backlog != 99 {
					t.Errorf("Relay.Backlog = %d, 期望默认值 99", cfg.Relay.Backlog)
				}
				if cfg.Relay.DialTimeout != 10*time.Second {
					t.Errorf("Relay.DialTimeout = %v, 期望默认值 10s", cfg.Relay.DialTimeout)
				}
				if err := cfg.Validate(); err != nil {
					t.Errorf("Validate() 返回错误: %v", err)
				}
			},
		},
		{
			name:       "文件不存在",
			createFile: false,
			wantErr:    true,
			validate: func(t *testing.T, cfg *Config, err error) {
				if !os.IsNotExist(err) {
					t.Errorf("期望文件不存在错误，实际: %v", err)
				}
			},
		},
		{
			name:       "YAML格式错误",
			createFile: true,
			content: `listen:
  host: "0.0.0.0"
  port: [11111
target:
  port: 22222
`,
			wantErr: true,
			validate: func(t *testing.T, cfg *Config, err error) {
				if err == nil || !strings.Contains(err.Error(), "yaml") {
					t.Errorf("期望返回YAML解析错误，实际: %v", err)
				}
			},
		},
		{
			name:       "空文件",
			createFile: true,
			content:    "",
			wantErr:    false,
			validate: func(t *testing.T, cfg *Config, err error) {
				// 空文件得到默认配置，端口为零值
				if cfg.Listen.Port != 0 || cfg.Target.Port != 0 {
					t.Errorf("端口应为零值，实际 Listen=%d Target=%d", cfg.Listen.Port, cfg.Target.Port)
				}
				if cfg.Logging.Level != "info" || cfg.Logging.Format != "auto" {
					t.Errorf("Logging 应为默认值，实际 Level=%q Format=%q", cfg.Logging.Level, cfg.Logging.Format)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tempDir := t.TempDir()
			configPath := filepath.Join(tempDir, "config.yaml")

			if tt.createFile {
				if err := os.WriteFile(configPath, []byte(tt.content), 0o644); err != nil {
					t.Fatalf("创建测试配置文件失败: %v", err)
				}
			}

			cfg, err := Load(configPath)

			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}

			if err == nil && cfg == nil {
				t.Fatalf("Load() 返回了 nil 配置")
			}

			if tt.validate != nil {
				tt.validate(t, cfg, err)
			}
		})
	}
}

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// TestApplyEnv 测试环境变量覆盖
func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"PORTFWD_LISTEN_HOST":  "127.0.0.1",
		"PORTFWD_LISTEN_PORT":  "11111",
		"PORTFWD_TARGET_PORT":  "22222",
		"PORTFWD_IDLE_TIMEOUT": "30s",
		"PORTFWD_LOG_LEVEL":    "warn",
		"PORTFWD_TARGET_HOST":  "",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv() 返回错误: %v", err)
	}
	if cfg.Listen.Host != "127.0.0.1" || cfg.Listen.Port != 11111 {
		t.Errorf("Listen = %+v, 期望 127.0.0.1:11111", cfg.Listen)
	}
	if cfg.Target.Host != "127.0.0.1" || cfg.Target.Port != 22222 {
		t.Errorf("Target = %+v, 期望 127.0.0.1:22222", cfg.Target)
	}
	if cfg.Relay.IdleTimeout != 30*time.Second {
		t.Errorf("Relay.IdleTimeout = %v, 期望 30s", cfg.Relay.IdleTimeout)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, 期望 warn", cfg.Logging.Level)
	}
}

// TestApplyEnvInvalid 测试非法环境变量值返回错误且不修改字段
func TestApplyEnvInvalid(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"PORTFWD_LISTEN_PORT":  "eleven",
		"PORTFWD_DIAL_TIMEOUT": "soon",
	}))
	if err == nil {
		t.Fatal("期望返回错误")
	}
	for _, key := range []string{"PORTFWD_LISTEN_PORT", "PORTFWD_DIAL_TIMEOUT"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("错误信息应包含 %s, 实际: %v", key, err)
		}
	}
	if cfg.Listen.Port != 0 || cfg.Relay.DialTimeout != 10*time.Second {
		t.Errorf("非法值不应修改字段，实际 Port=%d DialTimeout=%v", cfg.Listen.Port, cfg.Relay.DialTimeout)
	}
}

// TestValidate 测试配置校验
func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Listen.Port = 11111
		cfg.Target.Port = 22222
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"有效配置", func(c *Config) {}, ""},
		{"监听端口为零", func(c *Config) { c.Listen.Port = 0 }, "listen.port"},
		{"目标端口越界", func(c *Config) { c.Target.Port = 70000 }, "target.port"},
		{"IPv6地址", func(c *Config) { c.Target.Host = "::1" }, "target.host"},
		{"主机名", func(c *Config) { c.Listen.Host = "localhost" }, "listen.host"},
		{"backlog为零", func(c *Config) { c.Relay.Backlog = 0 }, "relay.backlog"},
		{"负的空闲超时", func(c *Config) { c.Relay.IdleTimeout = -time.Second }, "relay.idle_timeout"},
		{"未知日志格式", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"未知日志级别", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() 返回错误: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, 期望包含 %q", err, tt.wantErr)
			}
		})
	}
}

// TestEndpoints 测试端点与转发参数的构建
func TestEndpoints(t *testing.T) {
	cfg := Default()
	cfg.Listen.Port = 11111
	cfg.Target.Port = 22222
	cfg.Relay.IdleTimeout = time.Minute

	local, err := cfg.ListenEndpoint()
	if err != nil {
		t.Fatalf("ListenEndpoint() 返回错误: %v", err)
	}
	if local.String() != "0.0.0.0:11111" {
		t.Errorf("ListenEndpoint() = %s, 期望 0.0.0.0:11111", local)
	}
	target, err := cfg.TargetEndpoint()
	if err != nil {
		t.Fatalf("TargetEndpoint() 返回错误: %v", err)
	}
	if target.String() != "127.0.0.1:22222" {
		t.Errorf("TargetEndpoint() = %s, 期望 127.0.0.1:22222", target)
	}

	opts := cfg.ProxyOptions()
	if opts.Backlog != 99 || opts.DialTimeout != 10*time.Second || opts.IdleTimeout != time.Minute {
		t.Errorf("ProxyOptions() = %+v", opts)
	}
}
