// Package config loads each FlowKit process's configuration from the
// environment with documented defaults, following the viper
// AutomaticEnv+SetDefault pattern used elsewhere in this codebase's
// lineage for env-sourced process config.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

func newEnvViper(prefix string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ExecutorConfig configures the Flow Executor process.
type ExecutorConfig struct {
	Host             string `mapstructure:"host"`
	Port             string `mapstructure:"port"`
	MongoURI         string `mapstructure:"mongodb_uri"`
	DBName           string `mapstructure:"db_name"`
	Collection       string `mapstructure:"collection"`
	NodeRunnerAddr   string `mapstructure:"node_runner_addr"`
	TraceServiceAddr string `mapstructure:"trace_service_addr"`
	PoolSize         int    `mapstructure:"pool_size"`
	SQLitePath       string `mapstructure:"sqlite_path"`
}

// LoadExecutorConfig reads FLOWEXEC_* environment variables.
func LoadExecutorConfig() ExecutorConfig {
	v := newEnvViper("FLOWEXEC")
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", "8080")
	v.SetDefault("mongodb_uri", "mongodb://localhost:27017")
	v.SetDefault("db_name", "flowkit")
	v.SetDefault("collection", "fcb_queue")
	v.SetDefault("node_runner_addr", "http://localhost:8081")
	v.SetDefault("trace_service_addr", "http://localhost:8082")
	v.SetDefault("pool_size", 20)
	v.SetDefault("sqlite_path", "")

	return ExecutorConfig{
		Host:             v.GetString("host"),
		Port:             v.GetString("port"),
		MongoURI:         v.GetString("mongodb_uri"),
		DBName:           v.GetString("db_name"),
		Collection:       v.GetString("collection"),
		NodeRunnerAddr:   v.GetString("node_runner_addr"),
		TraceServiceAddr: v.GetString("trace_service_addr"),
		PoolSize:         v.GetInt("pool_size"),
		SQLitePath:       v.GetString("sqlite_path"),
	}
}

// RunnerConfig configures the Node Runner process.
type RunnerConfig struct {
	Host             string `mapstructure:"host"`
	Port             string `mapstructure:"port"`
	RedisHost        string `mapstructure:"redis_host"`
	RedisPort        string `mapstructure:"redis_port"`
	SecretManagerURL string `mapstructure:"secret_manager_url"`
	NpuExpirySeconds int    `mapstructure:"npu_expiry_seconds"`
}

// LoadRunnerConfig reads NODERUNNER_* environment variables.
func LoadRunnerConfig() RunnerConfig {
	v := newEnvViper("NODERUNNER")
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", "8081")
	v.SetDefault("redis_host", "localhost")
	v.SetDefault("redis_port", "6379")
	v.SetDefault("secret_manager_url", "http://localhost:8083")
	v.SetDefault("npu_expiry_seconds", 10)

	return RunnerConfig{
		Host:             v.GetString("host"),
		Port:             v.GetString("port"),
		RedisHost:        v.GetString("redis_host"),
		RedisPort:        v.GetString("redis_port"),
		SecretManagerURL: v.GetString("secret_manager_url"),
		NpuExpirySeconds: v.GetInt("npu_expiry_seconds"),
	}
}

// NpuConfig configures an NPU Worker process.
type NpuConfig struct {
	Host            string `mapstructure:"host"`
	NodeRunnerAddr  string `mapstructure:"node_runner_addr"`
	VenvPath        string `mapstructure:"venv_path"`
	ParallelProcess int    `mapstructure:"parallel_process"`
}

// LoadNpuConfig reads NPU_* environment variables.
func LoadNpuConfig() NpuConfig {
	v := newEnvViper("NPU")
	v.SetDefault("host", "http://localhost:8090")
	v.SetDefault("node_runner_addr", "http://localhost:8081")
	v.SetDefault("venv_path", "")
	v.SetDefault("parallel_process", 4)

	return NpuConfig{
		Host:            v.GetString("host"),
		NodeRunnerAddr:  v.GetString("node_runner_addr"),
		VenvPath:        v.GetString("venv_path"),
		ParallelProcess: v.GetInt("parallel_process"),
	}
}

// TraceConfig configures the Trace Recorder process.
type TraceConfig struct {
	Host       string `mapstructure:"host"`
	Port       string `mapstructure:"port"`
	MysqlDSN   string `mapstructure:"mysql_dsn"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// LoadTraceConfig reads TRACE_* environment variables.
func LoadTraceConfig() TraceConfig {
	v := newEnvViper("TRACE")
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", "8082")
	v.SetDefault("mysql_dsn", "")
	v.SetDefault("sqlite_path", "")

	return TraceConfig{
		Host:       v.GetString("host"),
		Port:       v.GetString("port"),
		MysqlDSN:   v.GetString("mysql_dsn"),
		SQLitePath: v.GetString("sqlite_path"),
	}
}

// SecretConfig configures the Secret Manager process.
type SecretConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// LoadSecretConfig reads SECRETMGR_* environment variables.
func LoadSecretConfig() SecretConfig {
	v := newEnvViper("SECRETMGR")
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", "8083")

	return SecretConfig{
		Host: v.GetString("host"),
		Port: v.GetString("port"),
	}
}
