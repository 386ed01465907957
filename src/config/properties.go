package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/dhrudevalia/neo4j-kafka-connector/src/domain"
)

// LoadProperties reads a Kafka-Connect style key=value properties file.
// Blank lines and lines starting with '#' are skipped.
func LoadProperties(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open properties file: %w", err)
	}
	defer file.Close()

	props := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			return nil, fmt.Errorf("%w: %s:%d is not a key=value line", domain.ErrInvalidConfig, path, lineNo)
		}
		props[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read properties file: %w", err)
	}
	return props, nil
}
