// Package planner turns a comparison into a batch of transfers.
package planner

import (
	"fmt"
	"strings"

	"github.com/input-output-hk/planvault/errors"
	"github.com/input-output-hk/planvault/synctypes"
)

// Policy decides what happens to files that differ on both sides. Content
// is never merged.
type Policy string

const (
	// PolicySkip leaves differing files alone.
	PolicySkip Policy = "skip"
	// PolicyPreferLocal uploads the local version of differing files.
	PolicyPreferLocal Policy = "local"
	// PolicyPreferCloud downloads the remote version of differing files.
	PolicyPreferCloud Policy = "cloud"
)

// ParsePolicy parses a policy name. The empty string means PolicySkip.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicySkip, nil
	case PolicySkip, PolicyPreferLocal, PolicyPreferCloud:
		return p, nil
	default:
		return "", errors.Newf(errors.CodeInvalidInput, "unknown conflict policy %q (want skip, local or cloud)", s)
	}
}

// Plan returns the transfers suggested by result, in result order. Files
// that are the same on both sides never produce an operation.
func Plan(result *synctypes.ComparisonResult, policy Policy) []synctypes.Operation {
	if result == nil {
		return nil
	}
	var ops []synctypes.Operation
	for _, rec := range result.Files {
		action := actionFor(rec, policy)
		if !action.Transfer() {
			continue
		}
		ops = append(ops, synctypes.Operation{RelativePath: rec.RelativePath, Action: action})
	}
	return ops
}

func actionFor(rec synctypes.Record, policy Policy) synctypes.Action {
	switch rec.Status {
	case synctypes.StatusLocalOnly:
		return synctypes.ActionUpload
	case synctypes.StatusCloudOnly:
		return synctypes.ActionDownload
	case synctypes.StatusDifferent:
		switch policy {
		case PolicyPreferLocal:
			return synctypes.ActionUpload
		case PolicyPreferCloud:
			return synctypes.ActionDownload
		}
	}
	return synctypes.ActionSkip
}

// Summary describes a batch for confirmation prompts.
func Summary(ops []synctypes.Operation) string {
	up, down := 0, 0
	for _, op := range ops {
		switch op.Action {
		case synctypes.ActionUpload:
			up++
		case synctypes.ActionDownload:
			down++
		}
	}
	return fmt.Sprintf("%d upload(s), %d download(s)", up, down)
}
