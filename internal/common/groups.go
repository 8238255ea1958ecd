package common

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

type GroupConfig struct {
	Id                    string   `yaml:"id"`
	FairEvaluationEnabled bool     `yaml:"fair_evaluation_enabled"`
	InitialBalance        float64  `yaml:"initial_balance"`
	Admins                []string `yaml:"admins"`
	Members               []string `yaml:"members"`
}

type GroupsConfig struct {
	Groups []GroupConfig `yaml:"groups"`
}

func LoadGroupConfig(groupsFile string) ([]GroupConfig, error) {
	var groupsPath string
	if filepath.IsAbs(groupsFile) {
		groupsPath = groupsFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		groupsPath = filepath.Join(wd, groupsFile)
	}

	data, err := os.ReadFile(groupsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", groupsFile, err)
	}

	var config GroupsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", groupsFile, err)
	}

	for i, group := range config.Groups {
		if group.Id == "" {
			return nil, fmt.Errorf("group at index %d missing id", i)
		}
		if group.InitialBalance < 0 {
			return nil, fmt.Errorf("group %s has negative initial_balance", group.Id)
		}
	}

	return config.Groups, nil
}
