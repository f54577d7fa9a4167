// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	jsonv2 "github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"zb.256lights.llc/multitree/internal/osutil"
	"zb.256lights.llc/multitree/internal/xmaps"
	"zb.256lights.llc/multitree/workspace"
	"zombiezen.com/go/log"
)

// DescribeVersion is the only supported version of the describe response.
const DescribeVersion = 0

// TreeQuery is the request written for a workspace's describe command.
type TreeQuery struct {
	BuildDomains []string `json:"build_domains"`
}

// TreeInfo is a workspace's response to the describe command.
type TreeInfo struct {
	Version int `json:"version"`
	// DomainData is the workspace's per-domain information.
	// It is never nil for a successfully parsed response.
	DomainData []jsontext.Value `json:"domain_data"`
}

// DescribeError is returned when a workspace's describe response
// is missing or malformed.
type DescribeError struct {
	Workspace workspace.Key
	Reason    string
}

func (e *DescribeError) Error() string {
	return fmt.Sprintf("describe %v: %s", e.Workspace, e.Reason)
}

// describe asks w which of its domains it can build.
func (o *Orchestrator) describe(ctx context.Context, w *workspace.Workspace) (*TreeInfo, error) {
	layout := w.Out()
	query, err := jsonv2.Marshal(&TreeQuery{BuildDomains: w.DomainNames()})
	if err != nil {
		return nil, err
	}
	queryPath := layout.Abs(workspace.Origin, workspace.TreeQueryFile)
	if err := os.MkdirAll(filepath.Dir(queryPath), 0o777); err != nil {
		return nil, err
	}
	if err := osutil.WriteFilePerm(queryPath, query, 0o644); err != nil {
		return nil, err
	}
	infoPath := layout.Abs(workspace.Origin, workspace.TreeInfoFile)
	if err := os.Remove(infoPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	err = o.invoke(ctx, StageInterrogate, w,
		"describe",
		"--input", layout.Path(workspace.Inner, workspace.TreeQueryFile),
		"--output", layout.Path(workspace.Inner, workspace.TreeInfoFile),
	)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(infoPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &DescribeError{Workspace: w.Key(), Reason: "no response written"}
	}
	if err != nil {
		return nil, err
	}
	info, err := ParseTreeInfo(data)
	if err != nil {
		return nil, &DescribeError{Workspace: w.Key(), Reason: err.Error()}
	}
	log.Debugf(ctx, "%v describes %d domain(s)", w.Key(), len(info.DomainData))
	if got, want := len(info.DomainData), len(w.DomainNames()); got != want {
		log.Warnf(ctx, "%v: requested %d domain(s), describe returned %d", w.Key(), want, got)
	}
	return info, nil
}

// ParseTreeInfo parses a describe response.
// The response must be an object with no keys besides "version" and "domain_data".
// A missing version is treated as [DescribeVersion]
// and any other version is an error.
// A missing domain_data is treated as an empty list.
func ParseTreeInfo(data []byte) (*TreeInfo, error) {
	var raw jsontext.Value
	if err := jsonv2.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse response: %v", err)
	}
	if raw.Kind() != '{' {
		return nil, errors.New("malformed response: not an object")
	}
	var fields map[string]jsontext.Value
	if err := jsonv2.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("malformed response: %v", err)
	}
	for k := range xmaps.Sorted(fields) {
		if k != "version" && k != "domain_data" {
			return nil, fmt.Errorf("invalid key %q in response", k)
		}
	}

	info := &TreeInfo{Version: DescribeVersion}
	if v, ok := fields["version"]; ok {
		if err := jsonv2.Unmarshal(v, &info.Version); err != nil {
			return nil, fmt.Errorf("invalid version %s", v)
		}
	}
	if info.Version != DescribeVersion {
		return nil, fmt.Errorf("invalid version %d", info.Version)
	}
	if v, ok := fields["domain_data"]; ok {
		if err := jsonv2.Unmarshal(v, &info.DomainData); err != nil {
			return nil, fmt.Errorf("malformed domain_data: %v", err)
		}
	}
	if info.DomainData == nil {
		info.DomainData = []jsontext.Value{}
	}
	return info, nil
}
