/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/facebook/meteor/meteor/control"
)

// config is meteord's -c FILE payload: the interface, settings file,
// self id, MAC classification and verbosity options that meteor's
// offline player takes on the command line, plus the live control
// listener and metrics addresses.
type config struct {
	Interface   string `json:"interface"`
	Settings    string `json:"settings"`
	SelfID      int32  `json:"self_id"`
	UseMAC      bool   `json:"use_mac_address"`
	ListenAddr  string `json:"listen_addr"`
	MetricsAddr string `json:"metrics_addr"`
	Verbose     bool   `json:"verbose"`
}

func defaultConfig() config {
	return config{
		ListenAddr:  fmt.Sprintf(":%d", control.DefaultPort),
		MetricsAddr: ":9377",
	}
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}
