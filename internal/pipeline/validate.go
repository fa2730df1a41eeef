package pipeline

import (
	"fmt"
	"regexp"
	"strings"
)

// packageNamePattern is the PEP 508 project name grammar
var packageNamePattern = regexp.MustCompile(`(?i)^([a-z0-9]|[a-z0-9][a-z0-9._-]*[a-z0-9])$`)

// keepRepo drops empty nodes and repositories that are archived, disabled,
// locked or mirrors.
func keepRepo(n *repoNode) bool {
	if n == nil || n.Name == "" {
		return false
	}
	return !(n.IsArchived || n.IsDisabled || n.IsLocked || n.IsMirror)
}

// validatePackages splits configured package names into usable and rejected
func validatePackages(packages []string) (valid []string, rejected []string) {
	seen := make(map[string]bool, len(packages))
	for _, p := range packages {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !packageNamePattern.MatchString(p) {
			rejected = append(rejected, p)
			continue
		}
		key := strings.ToLower(p)
		if seen[key] {
			continue
		}
		seen[key] = true
		valid = append(valid, p)
	}
	return valid, rejected
}

// splitRepoSlug validates an "owner/name" repository reference
func splitRepoSlug(slug string) (owner, name string, err error) {
	slug = strings.Trim(strings.TrimSpace(slug), "/")
	owner, name, ok := strings.Cut(slug, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("invalid repository %q: want owner/name", slug)
	}
	return owner, name, nil
}
