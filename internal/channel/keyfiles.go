package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

const keyFileParallelism = 4

// KeyFile is one uploaded credential file.
type KeyFile struct {
	Name string
	Data []byte
}

// ParsedKeyFile is an accepted credential file reduced to compact JSON.
type ParsedKeyFile struct {
	Name string `json:"name"`
	JSON string `json:"-"`
}

// KeyFileReport lists which uploaded files were kept and which were ignored.
type KeyFileReport struct {
	Accepted []string `json:"accepted"`
	Failed   []string `json:"failed"`
}

// ParseKeyFiles parses files concurrently. Invalid files are reported by
// name and never abort the others. Output order follows input order.
func ParseKeyFiles(ctx context.Context, files []KeyFile) ([]ParsedKeyFile, KeyFileReport, error) {
	results := make([]*ParsedKeyFile, len(files))
	var (
		mu     sync.Mutex
		failed = make(map[int]struct{})
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(keyFileParallelism)
	for i := range files {
		g.Go(func() error {
			if errCtx := gctx.Err(); errCtx != nil {
				return errCtx
			}
			parsed, errParse := parseKeyFile(files[i])
			if errParse != nil {
				mu.Lock()
				failed[i] = struct{}{}
				mu.Unlock()
				return nil
			}
			results[i] = &parsed
			return nil
		})
	}
	if errWait := g.Wait(); errWait != nil {
		return nil, KeyFileReport{}, fmt.Errorf("parse key files: %w", errWait)
	}

	report := KeyFileReport{Accepted: []string{}, Failed: []string{}}
	out := make([]ParsedKeyFile, 0, len(files))
	for i, res := range results {
		if _, bad := failed[i]; bad || res == nil {
			report.Failed = append(report.Failed, files[i].Name)
			continue
		}
		out = append(out, *res)
		report.Accepted = append(report.Accepted, res.Name)
	}
	return out, report, nil
}

func parseKeyFile(file KeyFile) (ParsedKeyFile, error) {
	trimmed := bytes.TrimSpace(file.Data)
	if len(trimmed) == 0 {
		return ParsedKeyFile{}, fmt.Errorf("key file %s is empty", file.Name)
	}
	var buf bytes.Buffer
	if errCompact := json.Compact(&buf, trimmed); errCompact != nil {
		return ParsedKeyFile{}, fmt.Errorf("key file %s: %w", file.Name, errCompact)
	}
	name := strings.TrimSpace(file.Name)
	if name == "" {
		name = "key.json"
	}
	return ParsedKeyFile{Name: name, JSON: buf.String()}, nil
}
