// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package config holds the global configuration of the scheduler, backed by
// viper with environment variable binding.
package config

import (
	"io"
	"strings"
	"sync"
	"time"

	"github.com/DataDog/viper"
	"github.com/spf13/pflag"
)

// Scheduler is the global configuration object
var Scheduler Config

// Config is the interface every piece of the scheduler reads its settings
// through. It hides the viper instance and its locking.
type Config interface {
	Set(key string, value interface{})
	SetDefault(key string, value interface{})

	SetConfigName(name string)
	SetConfigFile(file string)
	SetConfigType(configType string)
	AddConfigPath(path string)
	ReadInConfig() error
	ReadConfig(in io.Reader) error
	ConfigFileUsed() string

	BindEnv(key string, envvars ...string)
	BindEnvAndSetDefault(key string, value interface{})
	BindPFlag(key string, flag *pflag.Flag) error
	SetEnvPrefix(prefix string)
	SetEnvKeyReplacer(r *strings.Replacer)
	AutomaticEnv()

	IsSet(key string) bool
	Get(key string) interface{}
	GetString(key string) string
	GetBool(key string) bool
	GetInt(key string) int
	GetFloat64(key string) float64
	GetDuration(key string) time.Duration
	GetStringSlice(key string) []string
	GetStringMapString(key string) map[string]string
	AllSettings() map[string]interface{}
}

// safeConfig wraps viper with a lock so concurrent readers (HTTP handlers,
// the offer consumer) never race a Set from a test or a config reload.
type safeConfig struct {
	*viper.Viper
	sync.RWMutex
}

// NewConfig returns a new Config with the given name, environment prefix and
// env key replacer.
func NewConfig(name string, envPrefix string, envKeyReplacer *strings.Replacer) Config {
	config := safeConfig{Viper: viper.New()}
	config.SetConfigName(name)
	config.SetEnvPrefix(envPrefix)
	config.SetEnvKeyReplacer(envKeyReplacer)
	config.AutomaticEnv()
	return &config
}

func (c *safeConfig) Set(key string, value interface{}) {
	c.Lock()
	defer c.Unlock()
	c.Viper.Set(key, value)
}

func (c *safeConfig) SetDefault(key string, value interface{}) {
	c.Lock()
	defer c.Unlock()
	c.Viper.SetDefault(key, value)
}

func (c *safeConfig) SetConfigName(name string) {
	c.Lock()
	defer c.Unlock()
	c.Viper.SetConfigName(name)
}

func (c *safeConfig) SetConfigFile(file string) {
	c.Lock()
	defer c.Unlock()
	c.Viper.SetConfigFile(file)
}

func (c *safeConfig) SetConfigType(configType string) {
	c.Lock()
	defer c.Unlock()
	c.Viper.SetConfigType(configType)
}

func (c *safeConfig) AddConfigPath(path string) {
	c.Lock()
	defer c.Unlock()
	c.Viper.AddConfigPath(path)
}

func (c *safeConfig) ReadInConfig() error {
	c.Lock()
	defer c.Unlock()
	return c.Viper.ReadInConfig()
}

func (c *safeConfig) ReadConfig(in io.Reader) error {
	c.Lock()
	defer c.Unlock()
	return c.Viper.ReadConfig(in)
}

func (c *safeConfig) ConfigFileUsed() string {
	c.RLock()
	defer c.RUnlock()
	return c.Viper.ConfigFileUsed()
}

// BindEnv binds a key to matching environment variables, applying the
// configured prefix and key replacer when no explicit names are given.
func (c *safeConfig) BindEnv(key string, envvars ...string) {
	c.Lock()
	defer c.Unlock()
	c.Viper.BindEnv(append([]string{key}, envvars...)...) //nolint:errcheck
}

// BindEnvAndSetDefault binds the key to the environment and registers its
// default value in one call. Every known setting goes through this.
func (c *safeConfig) BindEnvAndSetDefault(key string, value interface{}) {
	c.Lock()
	defer c.Unlock()
	c.Viper.SetDefault(key, value)
	c.Viper.BindEnv(key) //nolint:errcheck
}

// BindPFlag lets a command-line flag override the key.
func (c *safeConfig) BindPFlag(key string, flag *pflag.Flag) error {
	c.Lock()
	defer c.Unlock()
	return c.Viper.BindPFlag(key, flag)
}

func (c *safeConfig) SetEnvPrefix(prefix string) {
	c.Lock()
	defer c.Unlock()
	c.Viper.SetEnvPrefix(prefix)
}

func (c *safeConfig) SetEnvKeyReplacer(r *strings.Replacer) {
	c.Lock()
	defer c.Unlock()
	c.Viper.SetEnvKeyReplacer(r)
}

func (c *safeConfig) AutomaticEnv() {
	c.Lock()
	defer c.Unlock()
	c.Viper.AutomaticEnv()
}

func (c *safeConfig) IsSet(key string) bool {
	c.RLock()
	defer c.RUnlock()
	return c.Viper.IsSet(key)
}

func (c *safeConfig) Get(key string) interface{} {
	c.RLock()
	defer c.RUnlock()
	return c.Viper.Get(key)
}

func (c *safeConfig) GetString(key string) string {
	c.RLock()
	defer c.RUnlock()
	return c.Viper.GetString(key)
}

func (c *safeConfig) GetBool(key string) bool {
	c.RLock()
	defer c.RUnlock()
	return c.Viper.GetBool(key)
}

func (c *safeConfig) GetInt(key string) int {
	c.RLock()
	defer c.RUnlock()
	return c.Viper.GetInt(key)
}

func (c *safeConfig) GetFloat64(key string) float64 {
	c.RLock()
	defer c.RUnlock()
	return c.Viper.GetFloat64(key)
}

func (c *safeConfig) GetDuration(key string) time.Duration {
	c.RLock()
	defer c.RUnlock()
	return c.Viper.GetDuration(key)
}

func (c *safeConfig) GetStringSlice(key string) []string {
	c.RLock()
	defer c.RUnlock()
	return c.Viper.GetStringSlice(key)
}

func (c *safeConfig) GetStringMapString(key string) map[string]string {
	c.RLock()
	defer c.RUnlock()
	return c.Viper.GetStringMapString(key)
}

func (c *safeConfig) AllSettings() map[string]interface{} {
	c.RLock()
	defer c.RUnlock()
	return c.Viper.AllSettings()
}

func init() {
	// Configure the global configuration object
	Scheduler = NewConfig("queue-scheduler", "QS", strings.NewReplacer(".", "_"))
	// Configuration defaults
	initConfig(Scheduler)
}

// initConfig initializes the config defaults on a config
func initConfig(config Config) {
	// Scheduler
	config.BindEnvAndSetDefault("log_level", "info")
	config.BindEnvAndSetDefault("log_file", "")
	config.BindEnvAndSetDefault("conf_path", ".")

	// Framework identity
	config.BindEnvAndSetDefault("framework.name", "queue-scheduler")
	config.BindEnvAndSetDefault("framework.principal", "queue-scheduler-principal")
	config.BindEnvAndSetDefault("framework.role", "queue-scheduler-role")
	config.BindEnvAndSetDefault("framework.uninstall", false)

	// Offer pipeline
	config.BindEnvAndSetDefault("offer_queue.capacity", 100)

	// Run submissions
	config.BindEnvAndSetDefault("default_spec_type", "yaml")

	// Persistent state
	config.BindEnvAndSetDefault("persister.backend", "zookeeper")
	config.BindEnvAndSetDefault("persister.root", "")
	config.BindEnvAndSetDefault("persister.cache", true)
	config.BindEnvAndSetDefault("lock.timeout", 30*time.Second)
	config.BindEnvAndSetDefault("zookeeper.servers", []string{"127.0.0.1:2181"})
	config.BindEnvAndSetDefault("zookeeper.timeout", 10*time.Second)
	config.BindEnvAndSetDefault("bolt.path", "queue-scheduler.db")
	config.BindEnvAndSetDefault("consul.address", "127.0.0.1:8500")
	config.BindEnvAndSetDefault("consul.datacenter", "")

	// Admin API
	config.BindEnvAndSetDefault("api.port", 9000)
	config.BindEnvAndSetDefault("api.idle_timeout", 60*time.Second)
	config.BindEnvAndSetDefault("api.max_submission_bytes", 512*1024)
}

// StateRoot returns the persister root path, deriving one from the framework
// name when the setting is empty.
func StateRoot(config Config) string {
	root := config.GetString("persister.root")
	if root != "" {
		return root
	}
	return "/queue-scheduler/" + config.GetString("framework.name")
}
