package main

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Generation  string   `yaml:"generation"`
	BypassHosts []string `yaml:"bypassHosts"`
	FontHosts   []string `yaml:"fontHosts"`
	Precache    []string `yaml:"precache"`
}

func getConfig(filename string) (Config, error) {
	var config Config
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	err = yaml.Unmarshal(configBytes, &config)
	return config, err
}
