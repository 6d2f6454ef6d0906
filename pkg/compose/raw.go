package compose

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stackdock/stackdock/pkg/types"
)

// RawProject is one entry of `docker compose ls --all --format json`.
// Narrow on purpose: only the fields the engine reads, so CLI-version drift
// stays contained here.
type RawProject struct {
	Name        string `json:"Name"`
	Status      string `json:"Status"`
	ConfigFiles string `json:"ConfigFiles"`
}

// RawPublisher is one port mapping of a RawService.
type RawPublisher struct {
	URL           string `json:"URL"`
	TargetPort    int    `json:"TargetPort"`
	PublishedPort int    `json:"PublishedPort"`
	Protocol      string `json:"Protocol"`
}

// RawService is one entry of `docker compose -p <name> ps --format json`.
type RawService struct {
	ID         string         `json:"ID"`
	Name       string         `json:"Name"`
	Image      string         `json:"Image"`
	Service    string         `json:"Service"`
	State      string         `json:"State"`
	Status     string         `json:"Status"`
	Health     string         `json:"Health"`
	ExitCode   int            `json:"ExitCode"`
	Publishers []RawPublisher `json:"Publishers"`
}

// ParseProjectList decodes `docker compose ls --all --format json` output.
// Malformed JSON is a hard error; the caller decides whether to serve a
// stale snapshot instead.
func ParseProjectList(data []byte) ([]RawProject, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var projects []RawProject
	if err := json.Unmarshal(trimmed, &projects); err != nil {
		return nil, fmt.Errorf("%w: parsing compose ls output: %w", types.ErrExecutor, err)
	}
	return projects, nil
}

// ParseServiceList decodes `docker compose ps --format json` output. Compose
// switched from a JSON array to one object per line in v2.21, so both shapes
// are accepted.
func ParseServiceList(data []byte) ([]RawService, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var services []RawService
		if err := json.Unmarshal(trimmed, &services); err != nil {
			return nil, fmt.Errorf("%w: parsing compose ps output: %w", types.ErrExecutor, err)
		}
		return services, nil
	}

	var services []RawService
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var svc RawService
		if err := json.Unmarshal([]byte(line), &svc); err != nil {
			return nil, fmt.Errorf("%w: parsing compose ps output line: %w", types.ErrExecutor, err)
		}
		services = append(services, svc)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading compose ps output: %w", types.ErrExecutor, err)
	}
	return services, nil
}

// ConfigFilePaths splits the ConfigFiles field, which holds one or more
// comma-separated absolute paths.
func (p RawProject) ConfigFilePaths() []string {
	if p.ConfigFiles == "" {
		return nil
	}
	parts := strings.Split(p.ConfigFiles, ",")
	paths := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			paths = append(paths, part)
		}
	}
	return paths
}
