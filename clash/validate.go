package clash

import "sort"

// Sentinel targets are always valid rule targets without being declared as
// groups. no-resolve appears here because legacy documents carry rules whose
// naively split last segment is the no-resolve flag rather than a reference.
var sentinelTargets = map[string]struct{}{
	"DIRECT":     {},
	"REJECT":     {},
	"PROXY":      {},
	"no-resolve": {},
}

// IsSentinel reports whether name is one of the reserved routing outcomes.
func IsSentinel(name string) bool {
	_, ok := sentinelTargets[name]
	return ok
}

// ValidTargets returns the set of names a rule may legally target: every
// declared group plus the sentinels.
func (d *Document) ValidTargets() map[string]struct{} {
	valid := make(map[string]struct{}, len(d.ProxyGroups)+len(sentinelTargets))
	for name := range sentinelTargets {
		valid[name] = struct{}{}
	}
	for i := range d.ProxyGroups {
		valid[d.ProxyGroups[i].Name] = struct{}{}
	}
	return valid
}

// UnresolvedRuleTargets scans every rule and reports the targets that
// reference neither a group nor a sentinel, deduplicated and sorted. This is
// run after every group-structure edit, before save.
func (d *Document) UnresolvedRuleTargets() []string {
	valid := d.ValidTargets()
	seen := map[string]struct{}{}
	var unresolved []string
	for i := range d.Rules {
		target := d.Rules[i].Target
		if _, ok := valid[target]; ok {
			continue
		}
		if _, dup := seen[target]; dup {
			continue
		}
		seen[target] = struct{}{}
		unresolved = append(unresolved, target)
	}
	sort.Strings(unresolved)
	return unresolved
}

// ApplyReplacement rewrites every unresolved rule target to the single
// chosen value and returns how many rules changed. The substitution is
// deliberately all-or-nothing: one replacement per validation pass,
// regardless of which deleted or renamed group a rule pointed at.
func (d *Document) ApplyReplacement(target string) int {
	valid := d.ValidTargets()
	count := 0
	for i := range d.Rules {
		if _, ok := valid[d.Rules[i].Target]; ok {
			continue
		}
		d.Rules[i].Target = target
		count++
	}
	return count
}

// UnresolvedMemberRefs reports membership entries that name neither a proxy
// node, a group, nor a sentinel. Dangling members do not break routing the
// way dangling rule targets do, so this is surfaced as lint rather than
// enforced by the edit operations.
func (d *Document) UnresolvedMemberRefs() []string {
	valid := d.ValidTargets()
	for i := range d.Proxies {
		valid[d.Proxies[i].Name] = struct{}{}
	}
	seen := map[string]struct{}{}
	var unresolved []string
	for i := range d.ProxyGroups {
		for _, member := range d.ProxyGroups[i].Proxies {
			if _, ok := valid[member]; ok {
				continue
			}
			if _, dup := seen[member]; dup {
				continue
			}
			seen[member] = struct{}{}
			unresolved = append(unresolved, member)
		}
	}
	sort.Strings(unresolved)
	return unresolved
}
